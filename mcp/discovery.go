// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/yosida95/uritemplate/v3"
)

// namespaced joins a server name and a tool/resource/prompt name into the
// identifier a Discovery catalog exposes to callers (§4.8): "serverName::name".
func namespaced(server, name string) string {
	return server + "::" + name
}

// entryKind distinguishes the four catalogs a Discovery aggregates.
type entryKind int

const (
	kindTool entryKind = iota
	kindResource
	kindResourceTemplate
	kindPrompt
)

// serverCatalog is one server's snapshot of its own tools, resources,
// resource templates, and prompts, refreshed by Discovery.Refresh.
type serverCatalog struct {
	tools     []*Tool
	resources []*Resource
	templates []*compiledTemplate
	prompts   []*Prompt
}

type compiledTemplate struct {
	server   string
	template *ResourceTemplate
	compiled *uritemplate.Template // nil if the template failed to parse
}

// Discovery aggregates the tool/resource/prompt catalogs of every
// connection a Manager owns into namespaced, collision-free unions (§4.8).
// A bare name that two servers both publish in the same catalog is recorded
// in Collisions and reported as a collision warning each time collisions
// are recomputed; both copies stay in the union under their namespaced ids.
//
// Discovery subscribes to its Manager's event stream for its entire
// lifetime: it fetches a server's catalog as soon as that server's
// connection reports connection:established, and drops it on
// connection:closed or connection:failed, with no host involvement
// required. Refresh and Invalidate remain exported for a host that wants to
// force an eager fetch or react to an out-of-band signal (e.g. a
// *_list_changed notification), but ordinary lifecycle tracking is
// automatic. Call Close when the Discovery is no longer needed to stop its
// background watcher.
type Discovery struct {
	manager *Manager

	mu         sync.RWMutex
	catalogs   map[string]*serverCatalog // server name -> catalog
	collisions []string                  // bare names seen from more than one server, most recent refresh

	events <-chan Event
	done   chan struct{}
}

// NewDiscovery returns a Discovery that aggregates every connection
// currently, and subsequently, registered on m, keeping itself up to date
// by watching m's event stream in the background.
func NewDiscovery(m *Manager) *Discovery {
	d := &Discovery{
		manager:  m,
		catalogs: make(map[string]*serverCatalog),
		events:   m.subscribe(),
		done:     make(chan struct{}),
	}
	go d.watch()
	return d
}

// watch drains d.events until the Manager disposes (closing the channel) or
// Close is called, fetching or dropping catalogs as connections come up and
// go down.
func (d *Discovery) watch() {
	for {
		select {
		case e, ok := <-d.events:
			if !ok {
				return
			}
			switch e.Kind {
			case EventEstablished:
				conn, ok := d.manager.Get(e.Server)
				if !ok {
					continue
				}
				cat, err := d.fetchCatalog(context.Background(), e.Server, conn)
				if err != nil {
					d.manager.emit(EventError, e.Server, "", fmt.Errorf("mcp: discovery: auto-refreshing %q: %w", e.Server, err))
					continue
				}
				d.mu.Lock()
				d.catalogs[e.Server] = cat
				d.mu.Unlock()
				d.recomputeCollisions()
			case EventClosed, EventFailed:
				d.mu.Lock()
				delete(d.catalogs, e.Server)
				d.mu.Unlock()
				d.recomputeCollisions()
			}
		case <-d.done:
			return
		}
	}
}

// Close stops the Discovery's background watcher. It does not affect the
// Manager or its other subscribers.
func (d *Discovery) Close() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	d.manager.unsubscribe(d.events)
}

// Refresh re-fetches the catalog for every Ready connection on the Manager,
// skipping (and leaving stale) any connection not currently Ready. Catalogs
// are already kept current automatically (see Discovery's doc comment);
// Refresh is for a host that wants to force an eager fetch, e.g. right after
// constructing the Discovery or in reaction to a *_list_changed
// notification.
func (d *Discovery) Refresh(ctx context.Context) error {
	for _, name := range d.manager.List() {
		conn, ok := d.manager.Get(name)
		if !ok || conn.Status() != StateReady {
			continue
		}
		cat, err := d.fetchCatalog(ctx, name, conn)
		if err != nil {
			return fmt.Errorf("mcp: refreshing %q: %w", name, err)
		}
		d.mu.Lock()
		d.catalogs[name] = cat
		d.mu.Unlock()
	}
	d.recomputeCollisions()
	return nil
}

// Invalidate drops a server's catalog, used when its connection is no
// longer Ready (§4.8: a non-ready connection's entries are withdrawn from
// the union).
func (d *Discovery) Invalidate(server string) {
	d.mu.Lock()
	delete(d.catalogs, server)
	d.mu.Unlock()
	d.recomputeCollisions()
}

func (d *Discovery) fetchCatalog(ctx context.Context, server string, conn *Connection) (*serverCatalog, error) {
	cat := &serverCatalog{}

	if conn.Capabilities() != nil && conn.Capabilities().Tools != nil {
		for cursor := ""; ; {
			page, err := ListTools(ctx, conn, cursor, nil)
			if err != nil {
				return nil, err
			}
			cat.tools = append(cat.tools, page.Tools...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	if conn.Capabilities() != nil && conn.Capabilities().Resources != nil {
		for cursor := ""; ; {
			page, err := ListResources(ctx, conn, cursor, nil)
			if err != nil {
				return nil, err
			}
			cat.resources = append(cat.resources, page.Resources...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		for cursor := ""; ; {
			page, err := ListResourceTemplates(ctx, conn, cursor, nil)
			if err != nil {
				return nil, err
			}
			for _, t := range page.ResourceTemplates {
				tpl, parseErr := uritemplate.New(t.URITemplate)
				if parseErr != nil {
					tpl = nil
				}
				cat.templates = append(cat.templates, &compiledTemplate{server: server, template: t, compiled: tpl})
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	if conn.Capabilities() != nil && conn.Capabilities().Prompts != nil {
		for cursor := ""; ; {
			page, err := ListPrompts(ctx, conn, cursor, nil)
			if err != nil {
				return nil, err
			}
			cat.prompts = append(cat.prompts, page.Prompts...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return cat, nil
}

// collisionKey identifies one entry in one of the bare-name spaces
// Discovery exposes (Tools, Resources, Prompts are separate maps, so a tool
// and a resource sharing a bare name is not actually ambiguous).
type collisionKey struct {
	kind entryKind
	name string
}

func (k entryKind) String() string {
	switch k {
	case kindTool:
		return "tool"
	case kindResource:
		return "resource"
	case kindResourceTemplate:
		return "resource template"
	case kindPrompt:
		return "prompt"
	default:
		return "entry"
	}
}

// recomputeCollisions rebuilds the set of bare names contributed by more
// than one server within the same catalog, and emits a warning Event for
// each (§4.8).
func (d *Discovery) recomputeCollisions() {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[collisionKey]string) // (kind, bare name) -> owning server
	collided := make(map[collisionKey]bool)
	note := func(server string, kind entryKind, name string) {
		key := collisionKey{kind, name}
		if owner, ok := seen[key]; ok && owner != server {
			collided[key] = true
		} else if !ok {
			seen[key] = server
		}
	}
	for server, cat := range d.catalogs {
		for _, t := range cat.tools {
			note(server, kindTool, t.Name)
		}
		for _, r := range cat.resources {
			note(server, kindResource, r.URI)
		}
		for _, tpl := range cat.templates {
			note(server, kindResourceTemplate, tpl.template.URITemplate)
		}
		for _, p := range cat.prompts {
			note(server, kindPrompt, p.Name)
		}
	}

	d.collisions = d.collisions[:0]
	for key := range collided {
		d.collisions = append(d.collisions, key.name)
		if d.manager != nil {
			d.manager.emit(EventError, "", "", fmt.Errorf("mcp: discovery: %s name %q claimed by more than one server, only namespaced ids resolve it", key.kind, key.name))
		}
	}
}

// Tools returns the union of every Ready server's tools, keyed by
// namespaced id ("serverName::toolName").
func (d *Discovery) Tools() map[string]*Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*Tool)
	for server, cat := range d.catalogs {
		for _, t := range cat.tools {
			out[namespaced(server, t.Name)] = t
		}
	}
	return out
}

// Resources returns the union of every Ready server's resources, keyed by
// namespaced id ("serverName::uri").
func (d *Discovery) Resources() map[string]*Resource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*Resource)
	for server, cat := range d.catalogs {
		for _, r := range cat.resources {
			out[namespaced(server, r.URI)] = r
		}
	}
	return out
}

// Prompts returns the union of every Ready server's prompts, keyed by
// namespaced id ("serverName::promptName").
func (d *Discovery) Prompts() map[string]*Prompt {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*Prompt)
	for server, cat := range d.catalogs {
		for _, p := range cat.prompts {
			out[namespaced(server, p.Name)] = p
		}
	}
	return out
}

// MatchResourceTemplate finds the first resource template, across every
// Ready server, whose RFC 6570 pattern matches uri. It reports the owning
// server's namespaced id, the template, and the extracted variables.
func (d *Discovery) MatchResourceTemplate(uri string) (id string, tmpl *ResourceTemplate, values uritemplate.Values, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for server, cat := range d.catalogs {
		for _, ct := range cat.templates {
			if ct.compiled == nil {
				continue
			}
			if v, matched := ct.compiled.Match(uri); matched {
				return namespaced(server, ct.template.Name), ct.template, v, true
			}
		}
	}
	return "", nil, nil, false
}

// Collisions returns the bare names currently claimed by more than one
// server, as of the last Refresh.
func (d *Discovery) Collisions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.collisions))
	copy(out, d.collisions)
	return out
}
