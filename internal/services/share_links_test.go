package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/nitu-designer/lehangas/internal/domain"
)

type stubResolver struct {
	products []domain.Product
}

func (s stubResolver) ResolveProduct(key string) (domain.Product, bool) {
	for _, p := range s.products {
		if p.MatchesKey(key) {
			return p, true
		}
	}
	return domain.Product{}, false
}

type stubContacts struct {
	contact domain.AdminContact
	err     error
}

func (s stubContacts) FindAdmin(ctx context.Context) (domain.AdminContact, error) {
	return s.contact, s.err
}

type stubShareEvents struct {
	mu     sync.Mutex
	events []domain.ShareEvent
	err    error
	delay  time.Duration
}

func (s *stubShareEvents) Append(ctx context.Context, event domain.ShareEvent) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubShareEvents) recorded() []domain.ShareEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ShareEvent(nil), s.events...)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.ShareEvent
	err    error
}

func (s *stubPublisher) PublishShareEvent(ctx context.Context, event domain.ShareEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.events = append(s.events, event)
	return "msg-1", nil
}

func shareFixture(t *testing.T, deps ShareServiceDeps) *ShareLinks {
	t.Helper()
	if deps.Catalog == nil {
		deps.Catalog = stubResolver{products: []domain.Product{
			{ID: "p1", Name: "Bridal--Red Velvet--1", ImageURL: "https://i.ibb.co/1/red.jpg"},
			{ID: "p2", Name: "Party--gold--2", ImageURL: "https://i.ibb.co/2/gold.jpg"},
		}}
	}
	if deps.Contacts == nil {
		deps.Contacts = stubContacts{contact: domain.AdminContact{UserID: "admin", Phone: "+91 98765 43210"}}
	}
	if deps.Origin == "" {
		deps.Origin = "https://shop.example.com/"
	}
	deps.IDGenerator = func() string { return "evt-1" }
	deps.Clock = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	svc, err := NewShareService(deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func decodedText(t *testing.T, link ShareLink) string {
	t.Helper()
	parsed, err := url.Parse(link.URL)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return parsed.Query().Get("text")
}

func TestNewShareServiceValidatesDependencies(t *testing.T) {
	base := ShareServiceDeps{Catalog: stubResolver{}, Contacts: stubContacts{}, Origin: "https://shop.example.com"}

	deps := base
	deps.Catalog = nil
	if _, err := NewShareService(deps); err == nil {
		t.Fatalf("expected error without catalog")
	}
	deps = base
	deps.Contacts = nil
	if _, err := NewShareService(deps); err == nil {
		t.Fatalf("expected error without contacts")
	}
	deps = base
	deps.Origin = "not a url"
	if _, err := NewShareService(deps); err == nil {
		t.Fatalf("expected error for relative origin")
	}
}

func TestBuildShareLinkSingle(t *testing.T) {
	svc := shareFixture(t, ShareServiceDeps{})

	link, err := svc.BuildShareLink(context.Background(), []string{"https://i.ibb.co/1/red.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantURL := "https://shop.example.com/shared/Bridal--Red%20Velvet--1"
	if link.Kind != domain.ShareKindSingle || len(link.ShareURLs) != 1 || link.ShareURLs[0] != wantURL {
		t.Fatalf("unexpected link %+v", link)
	}
	wantMessage := "Hi, I'm interested in this design: \n\n" + wantURL
	if link.Message != wantMessage {
		t.Fatalf("unexpected message %q", link.Message)
	}
	if !strings.HasPrefix(link.URL, "https://wa.me/919876543210?text=") {
		t.Fatalf("unexpected destination %s", link.URL)
	}
	if strings.Contains(link.URL, "+") {
		t.Fatalf("expected spaces escaped as %%20, got %s", link.URL)
	}
	if got := decodedText(t, link); got != wantMessage {
		t.Fatalf("expected round-trippable text, got %q", got)
	}
}

func TestBuildShareLinkMultiKeepsUnresolvedKeys(t *testing.T) {
	recorder := &eventRecorder{}
	svc := shareFixture(t, ShareServiceDeps{Logger: recorder.log})

	link, err := svc.BuildShareLink(context.Background(), []string{"Party--gold--2", "https://elsewhere/x.jpg", " "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Kind != domain.ShareKindMulti || len(link.Keys) != 2 {
		t.Fatalf("unexpected link %+v", link)
	}
	want := "Hello! I'm interested in these designs: \n\n" +
		"https://shop.example.com/shared/Party--gold--2\n\nhttps://elsewhere/x.jpg"
	if link.Message != want {
		t.Fatalf("unexpected message %q", link.Message)
	}
	if !recorder.has("share.resolution_failed") {
		t.Fatalf("expected unresolved key to be logged")
	}
}

func TestBuildShareLinkWithoutAdminPhone(t *testing.T) {
	svc := shareFixture(t, ShareServiceDeps{Contacts: stubContacts{err: notFoundError("admin")}})
	link, err := svc.BuildShareLink(context.Background(), []string{"Party--gold--2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Phone != "" || !strings.HasPrefix(link.URL, "https://wa.me/?text=") {
		t.Fatalf("expected empty phone, got %+v", link)
	}
}

func TestBuildShareLinkRequiresKeys(t *testing.T) {
	svc := shareFixture(t, ShareServiceDeps{})
	if _, err := svc.BuildShareLink(context.Background(), nil); !IsKind(err, ErrorKindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShareRecordsEvent(t *testing.T) {
	events := &stubShareEvents{}
	publisher := &stubPublisher{}
	svc := shareFixture(t, ShareServiceDeps{Events: events, Publisher: publisher})

	link, err := svc.Share(context.Background(), []string{"Party--gold--2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	got := events.recorded()
	if len(got) != 1 {
		t.Fatalf("expected one event, got %+v", got)
	}
	event := got[0]
	if event.ID != "evt-1" || event.Kind != domain.ShareKindSingle || event.Name != "Party--gold--2" {
		t.Fatalf("unexpected event %+v", event)
	}
	if len(event.ShareURLs) != 1 || event.ShareURLs[0] != link.ShareURLs[0] {
		t.Fatalf("expected share urls recorded, got %+v", event.ShareURLs)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected event published")
	}
}

func TestShareSucceedsWhenAnalyticsFail(t *testing.T) {
	recorder := &eventRecorder{}
	events := &stubShareEvents{err: errors.New("permission denied"), delay: 20 * time.Millisecond}
	publisher := &stubPublisher{err: errors.New("topic not found")}
	svc := shareFixture(t, ShareServiceDeps{Events: events, Publisher: publisher, Logger: recorder.log})

	ctx, cancel := context.WithCancel(context.Background())
	link, err := svc.Share(ctx, []string{"Party--gold--2", "Bridal--Red Velvet--1"})
	cancel()
	if err != nil {
		t.Fatalf("expected link despite analytics failure, got %v", err)
	}
	if link.URL == "" || link.Kind != domain.ShareKindMulti {
		t.Fatalf("unexpected link %+v", link)
	}
	svc.Wait()
	if !recorder.has("share.record_failed") {
		t.Fatalf("expected failure to be logged")
	}
}

func TestShareSharedPage(t *testing.T) {
	events := &stubShareEvents{}
	svc := shareFixture(t, ShareServiceDeps{Events: events})

	link, err := svc.ShareSharedPage(context.Background(), "Party--gold--2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Hi, I'm interested in this design: \n\nParty--gold--2\nhttps://shop.example.com/shared/Party--gold--2"
	if link.Message != want || link.Kind != domain.ShareKindSharedPage {
		t.Fatalf("unexpected link %+v", link)
	}
	svc.Wait()
	if got := events.recorded(); len(got) != 1 || got[0].Kind != domain.ShareKindSharedPage {
		t.Fatalf("expected shared page event, got %+v", got)
	}
	if _, err := svc.ShareSharedPage(context.Background(), ""); !IsKind(err, ErrorKindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
