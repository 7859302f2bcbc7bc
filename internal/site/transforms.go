package site

import (
	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/transform"
)

// Transform names double as task names.
const (
	TaskStyles  = "css"
	TaskScripts = "js"
	TaskImages  = "images"
	TaskViews   = "views"
)

// Transforms declares which globs feed which processor, in build order.
func Transforms(cfg *config.Config) []*transform.Transform {
	return []*transform.Transform{
		{
			Name:      TaskStyles,
			Patterns:  cfg.Styles.Patterns,
			Watch:     cfg.Styles.Watch,
			Base:      cfg.Styles.Base,
			Dest:      cfg.Styles.Dest,
			Processor: transform.NewMinify(transform.MediaCSS),
		},
		{
			Name:      TaskScripts,
			Patterns:  cfg.Scripts.Patterns,
			Watch:     cfg.Scripts.Watch,
			Base:      cfg.Scripts.Base,
			Dest:      cfg.Scripts.Dest,
			Processor: transform.NewMinify(transform.MediaJS),
		},
		{
			Name:      TaskImages,
			Patterns:  cfg.Images.Patterns,
			Watch:     cfg.Images.Watch,
			Base:      cfg.Images.Base,
			Dest:      cfg.Images.Dest,
			Processor: transform.NewImages(cfg.Images.JPEGQuality),
		},
		{
			Name:     TaskViews,
			Patterns: cfg.Views.Patterns,
			Watch:    cfg.Views.Watch,
			Base:     cfg.Views.Base,
			Dest:     cfg.Views.Dest,
			Processor: transform.NewViews(cfg.Views.Includes, transform.SiteData{
				Title:   cfg.Site.Title,
				BaseURL: cfg.Site.BaseURL,
			}),
		},
	}
}
