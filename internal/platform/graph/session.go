package graph

import (
	"context"
	"errors"
	"sync"

	"injury-report/internal/auth"
)

// Site locates the configured list. SiteID wins over Hostname and Path.
type Site struct {
	SiteID   string
	Hostname string
	Path     string
	ListName string
}

// Session binds a client, a caller token and the list location resolved for
// one draft. The resolved ids live here rather than in package state so that
// each draft carries its own.
type Session struct {
	client *Client
	tokens auth.TokenSource
	site   Site

	mu  sync.Mutex
	ref ListRef
}

// NewSession starts a session. known may hold ids resolved earlier for the
// same draft; a partial ref is ignored.
func (c *Client) NewSession(ts auth.TokenSource, site Site, known ListRef) *Session {
	s := &Session{client: c, tokens: ts, site: site}
	if known.SiteID != "" && known.ListID != "" {
		s.ref = known
	}
	return s
}

// Ref returns the list location, resolving and caching it on first use.
func (s *Session) Ref(ctx context.Context) (ListRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ref.SiteID != "" && s.ref.ListID != "" {
		return s.ref, nil
	}

	siteID := s.site.SiteID
	if siteID == "" {
		if s.site.Hostname == "" || s.site.Path == "" {
			return ListRef{}, errors.New("record store site id or hostname/path must be configured")
		}
		id, err := s.client.ResolveSite(ctx, s.tokens, s.site.Hostname, s.site.Path)
		if err != nil {
			return ListRef{}, err
		}
		siteID = id
	}

	listID, err := s.client.ResolveList(ctx, s.tokens, siteID, s.site.ListName)
	if err != nil {
		return ListRef{}, err
	}
	s.ref = ListRef{SiteID: siteID, ListID: listID}
	return s.ref, nil
}

func (s *Session) Create(ctx context.Context, fields any) (string, error) {
	ref, err := s.Ref(ctx)
	if err != nil {
		return "", err
	}
	return s.client.Create(ctx, s.tokens, ref, fields)
}

func (s *Session) Update(ctx context.Context, id string, fields any) error {
	ref, err := s.Ref(ctx)
	if err != nil {
		return err
	}
	return s.client.Update(ctx, s.tokens, ref, id, fields)
}

func (s *Session) Get(ctx context.Context, id string) (*Item, error) {
	ref, err := s.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, s.tokens, ref, id)
}

func (s *Session) List(ctx context.Context) ([]Item, error) {
	ref, err := s.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.List(ctx, s.tokens, ref)
}

func (s *Session) Delete(ctx context.Context, id string) error {
	ref, err := s.Ref(ctx)
	if err != nil {
		return err
	}
	return s.client.Delete(ctx, s.tokens, ref, id)
}
