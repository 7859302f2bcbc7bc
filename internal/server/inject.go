package server

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LiveReloadScriptPath is the URL the injected client script is served from.
const LiveReloadScriptPath = "/livereload.js"

// InjectLiveReload returns the document with the live reload client appended
// to its body. Documents that already reference the client are returned as is.
func InjectLiveReload(doc []byte) ([]byte, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	if hasLiveReloadScript(root) {
		return doc, nil
	}

	// html.Parse always synthesizes a body element.
	body := findElement(root, atom.Body)
	if body == nil {
		return doc, nil
	}

	body.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "src", Val: LiveReloadScriptPath}},
	})

	var out bytes.Buffer
	if err := html.Render(&out, root); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}
	return out.Bytes(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func hasLiveReloadScript(n *html.Node) bool {
	if n.Type == html.ElementNode && n.DataAtom == atom.Script {
		for _, attr := range n.Attr {
			if attr.Key == "src" && attr.Val == LiveReloadScriptPath {
				return true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasLiveReloadScript(c) {
			return true
		}
	}
	return false
}
