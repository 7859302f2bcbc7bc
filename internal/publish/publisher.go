package publish

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/metrics"
)

// DefaultCacheControl is sent with every upload unless configured otherwise.
const DefaultCacheControl = "max-age=2592000, public"

// Action is what happened to one file or object.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
	ActionDelete Action = "delete"
	ActionError  Action = "error"
)

// Result is the outcome for one file or remote object.
type Result struct {
	Path   string
	Key    string
	Action Action
	Size   int64
	Err    error
}

// Report lists the results of one publish in the order they happened.
type Report struct {
	Results []Result
}

// Count returns how many results have action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, res := range r.Results {
		if res.Action == a {
			n++
		}
	}
	return n
}

// Summary renders the per-action totals on one line.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d skipped, %d deleted, %d failed",
		r.Count(ActionCreate), r.Count(ActionUpdate), r.Count(ActionSkip),
		r.Count(ActionDelete), r.Count(ActionError))
}

// Print writes one line per result and the summary, in the style of a
// publish reporter.
func (r *Report) Print(w io.Writer) {
	for _, res := range r.Results {
		if res.Action == ActionSkip {
			continue
		}
		line := fmt.Sprintf("[%s] %s", res.Action, res.Key)
		if res.Err != nil {
			line += ": " + res.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, r.Summary())
}

// Options configure a Publisher.
type Options struct {
	// Prefix is prepended to every key. It scopes the sync pass too.
	Prefix       string
	CacheControl string
	// FailFast stops at the first failed upload.
	FailFast bool
}

// Publisher mirrors a local directory into an ObjectStore.
type Publisher struct {
	store    ObjectStore
	opts     Options
	logger   logging.Logger
	recorder metrics.Recorder
}

// NewPublisher creates a publisher. A nil logger or recorder disables that
// concern.
func NewPublisher(store ObjectStore, opts Options, logger logging.Logger, recorder metrics.Recorder) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if opts.CacheControl == "" {
		opts.CacheControl = DefaultCacheControl
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")

	return &Publisher{
		store:    store,
		opts:     opts,
		logger:   logger.WithComponent("publish"),
		recorder: recorder,
	}
}

type localFile struct {
	rel  string
	path string
	key  string
}

// Publish uploads every file under root, skipping those whose remote ETag
// already matches, then deletes remote objects under the prefix that have
// no local file. Every upload is attempted; when any fails the delete pass
// is skipped and the failures are returned together.
func (p *Publisher) Publish(ctx context.Context, root string) (*Report, error) {
	report := &Report{}

	files, err := p.localFiles(root)
	if err != nil {
		return report, errors.NewPublishError("reading output root", err)
	}

	remote, err := p.store.List(ctx, p.listPrefix())
	if err != nil {
		return report, errors.NewPublishError("listing remote objects", err)
	}
	etags := make(map[string]string, len(remote))
	for _, obj := range remote {
		etags[obj.Key] = obj.ETag
	}

	failures := errors.NewErrorCollector()
	local := make(map[string]struct{}, len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		local[f.key] = struct{}{}

		res := p.upload(ctx, f, etags)
		p.record(report, res)
		if res.Err != nil {
			failures.Add("upload", f.rel, res.Err)
			if p.opts.FailFast {
				break
			}
		}
	}

	if failures.HasErrors() {
		p.logger.Warn(ctx, nil, "Skipping sync after failed uploads", "failed", failures.Count())
		p.logger.Info(ctx, "Publish finished", "summary", report.Summary())
		msg := fmt.Sprintf("%d of %d files failed to upload", failures.Count(), len(files))
		return report, errors.NewPublishError(msg, failures.Err())
	}

	if err := p.sync(ctx, remote, local, report); err != nil {
		return report, err
	}

	p.logger.Info(ctx, "Publish finished", "summary", report.Summary())
	return report, nil
}

func (p *Publisher) upload(ctx context.Context, f localFile, etags map[string]string) Result {
	res := Result{Path: f.rel, Key: f.key}

	body, err := os.ReadFile(f.path)
	if err != nil {
		res.Action = ActionError
		res.Err = err
		return res
	}
	res.Size = int64(len(body))

	sum := md5.Sum(body)
	etag, exists := etags[f.key]
	if exists && strings.EqualFold(etag, hex.EncodeToString(sum[:])) {
		res.Action = ActionSkip
		return res
	}

	err = p.store.Put(ctx, PutInput{
		Key:          f.key,
		Body:         body,
		ContentType:  contentType(f.rel),
		CacheControl: p.opts.CacheControl,
		ContentMD5:   base64.StdEncoding.EncodeToString(sum[:]),
	})
	switch {
	case err != nil:
		res.Action = ActionError
		res.Err = err
	case exists:
		res.Action = ActionUpdate
	default:
		res.Action = ActionCreate
	}
	return res
}

func (p *Publisher) sync(ctx context.Context, remote []Object, local map[string]struct{}, report *Report) error {
	var stale []string
	for _, obj := range remote {
		if _, ok := local[obj.Key]; !ok {
			stale = append(stale, obj.Key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	sort.Strings(stale)

	if err := p.store.Delete(ctx, stale); err != nil {
		for _, key := range stale {
			p.record(report, Result{Key: key, Action: ActionError, Err: err})
		}
		return errors.NewPublishError("deleting stale objects", err)
	}

	for _, key := range stale {
		p.record(report, Result{Key: key, Action: ActionDelete})
	}
	return nil
}

func (p *Publisher) record(report *Report, res Result) {
	report.Results = append(report.Results, res)
	p.recorder.IncPublishResult(string(res.Action))
	if res.Err != nil {
		p.logger.Warn(context.Background(), res.Err, "Publish failed", "key", res.Key)
		return
	}
	p.logger.Debug(context.Background(), "Published", "key", res.Key, "action", string(res.Action))
}

// localFiles lists regular files under root in lexical order.
func (p *Publisher) localFiles(root string) ([]localFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []localFile
	err = filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, localFile{rel: rel, path: name, key: p.key(rel)})
		return nil
	})
	return files, err
}

func (p *Publisher) key(rel string) string {
	if p.opts.Prefix == "" {
		return rel
	}
	return path.Join(p.opts.Prefix, rel)
}

func (p *Publisher) listPrefix() string {
	if p.opts.Prefix == "" {
		return ""
	}
	return p.opts.Prefix + "/"
}

func contentType(rel string) string {
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
