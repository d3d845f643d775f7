package client

import (
	"bytes"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Message is a chat message decoded from a server fragment.
type Message struct {
	ID     string
	Author string
	Text   string
	Time   time.Time
	Own    bool
}

// Fragment is the decoded content of one server push.
type Fragment struct {
	Messages []Message
	Error    string

	// ClearsError is set when the fragment empties the error area.
	ClearsError bool
}

// ParseFragment decodes an out-of-band fragment sent over the room socket.
func ParseFragment(data []byte) (Fragment, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(data), body)
	if err != nil {
		return Fragment{}, err
	}

	var f Fragment
	for _, n := range nodes {
		walk(n, &f)
	}
	return f, nil
}

func walk(n *html.Node, f *Fragment) {
	if n.Type == html.ElementNode {
		switch {
		case attr(n, "id") == "chat-error":
			f.Error = strings.TrimSpace(textContent(n))
			f.ClearsError = f.Error == ""
			return
		case n.DataAtom == atom.Li && hasClass(n, "message"):
			f.Messages = append(f.Messages, parseMessage(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, f)
	}
}

func parseMessage(li *html.Node) Message {
	m := Message{
		ID:  strings.TrimPrefix(attr(li, "id"), "msg-"),
		Own: hasClass(li, "own"),
	}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch {
		case hasClass(c, "author"):
			m.Author = strings.TrimSpace(textContent(c))
		case hasClass(c, "text"):
			m.Text = strings.TrimSpace(textContent(c))
		case c.DataAtom == atom.Time:
			if t, err := time.Parse(time.RFC3339, attr(c, "datetime")); err == nil {
				m.Time = t
			}
		}
	}
	return m
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}
