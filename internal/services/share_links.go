package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const (
	shareMeterName            = "github.com/nitu-designer/lehangas/internal/services/share"
	defaultShareRecordTimeout = 10 * time.Second
	whatsAppBaseURL           = "https://wa.me/"
	singleShareIntro          = "Hi, I'm interested in this design: \n\n"
	multiShareIntro           = "Hello! I'm interested in these designs: \n\n"
)

// ProductResolver looks a share key up in the current product snapshot.
type ProductResolver interface {
	ResolveProduct(key string) (Product, bool)
}

// SharePublisher forwards share events to a message bus.
type SharePublisher interface {
	PublishShareEvent(ctx context.Context, event ShareEvent) (string, error)
}

// ShareServiceDeps bundles collaborators for share link building and analytics.
type ShareServiceDeps struct {
	Catalog       ProductResolver
	Contacts      repositories.AdminContactRepository
	Events        repositories.ShareEventRepository
	Publisher     SharePublisher
	Origin        string
	RecordTimeout time.Duration
	Meter         metric.Meter
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// ShareLinks builds WhatsApp deep links for products and records share analytics in the background.
type ShareLinks struct {
	catalog       ProductResolver
	contacts      repositories.AdminContactRepository
	events        repositories.ShareEventRepository
	publisher     SharePublisher
	origin        string
	recordTimeout time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(ctx context.Context, event string, fields map[string]any)

	recorded metric.Int64Counter
	failed   metric.Int64Counter

	inflight sync.WaitGroup
}

var _ ShareService = (*ShareLinks)(nil)

// NewShareService validates dependencies. Events and Publisher are optional; without both, shares are
// not recorded.
func NewShareService(deps ShareServiceDeps) (*ShareLinks, error) {
	if deps.Catalog == nil {
		return nil, errors.New("share service: catalog is required")
	}
	if deps.Contacts == nil {
		return nil, errors.New("share service: admin contact repository is required")
	}
	origin := strings.TrimRight(strings.TrimSpace(deps.Origin), "/")
	if origin == "" {
		return nil, errors.New("share service: origin is required")
	}
	if _, err := url.ParseRequestURI(origin); err != nil {
		return nil, errors.New("share service: origin must be an absolute URL")
	}
	timeout := deps.RecordTimeout
	if timeout <= 0 {
		timeout = defaultShareRecordTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(shareMeterName)
	}
	recorded, err := meter.Int64Counter("share.events.recorded",
		metric.WithDescription("Share events stored or published"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("share.events.failed",
		metric.WithDescription("Share events that could not be stored or published"))
	if err != nil {
		return nil, err
	}

	return &ShareLinks{
		catalog:       deps.Catalog,
		contacts:      deps.Contacts,
		events:        deps.Events,
		publisher:     deps.Publisher,
		origin:        origin,
		recordTimeout: timeout,
		clock:         func() time.Time { return clock().UTC() },
		newID:         newID,
		logger:        logger,
		recorded:      recorded,
		failed:        failed,
	}, nil
}

// BuildShareLink resolves keys to shared-page URLs and composes the WhatsApp link. Keys that match no
// product are shared as-is.
func (s *ShareLinks) BuildShareLink(ctx context.Context, keys []string) (ShareLink, error) {
	link, _, err := s.build(ctx, keys)
	return link, err
}

// Share builds the link and records the share. Recording never fails the call.
func (s *ShareLinks) Share(ctx context.Context, keys []string) (ShareLink, error) {
	link, name, err := s.build(ctx, keys)
	if err != nil {
		return ShareLink{}, err
	}
	s.RecordShareEvent(ctx, link, name)
	return link, nil
}

// build returns the link and, for a single resolved design, the product name.
func (s *ShareLinks) build(ctx context.Context, keys []string) (ShareLink, string, error) {
	keys = compactKeys(keys)
	if len(keys) == 0 {
		return ShareLink{}, "", validationError("share.build", "at least one design is required")
	}

	urls := make([]string, 0, len(keys))
	var name string
	for _, key := range keys {
		product, ok := s.catalog.ResolveProduct(key)
		if !ok {
			s.logger(ctx, "share.resolution_failed", map[string]any{
				"key":  key,
				"kind": string(ErrorKindResolutionFailed),
			})
			urls = append(urls, key)
			continue
		}
		name = product.Name
		urls = append(urls, s.SharedPageURL(product.Name))
	}

	link := ShareLink{Keys: keys, ShareURLs: urls}
	if len(keys) == 1 {
		link.Kind = domain.ShareKindSingle
		link.Message = singleShareIntro + urls[0]
	} else {
		link.Kind = domain.ShareKindMulti
		link.Message = multiShareIntro + strings.Join(urls, "\n\n")
		name = ""
	}
	link.Phone = s.adminPhone(ctx)
	link.URL = whatsAppURL(link.Phone, link.Message)
	return link, name, nil
}

// ShareSharedPage builds the link shared from a product's public page.
func (s *ShareLinks) ShareSharedPage(ctx context.Context, name string) (ShareLink, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ShareLink{}, validationError("share.sharedPage", "design name is required")
	}
	pageURL := s.SharedPageURL(name)
	link := ShareLink{
		Kind:      domain.ShareKindSharedPage,
		Keys:      []string{name},
		ShareURLs: []string{pageURL},
		Message:   singleShareIntro + name + "\n" + pageURL,
	}
	link.Phone = s.adminPhone(ctx)
	link.URL = whatsAppURL(link.Phone, link.Message)
	s.RecordShareEvent(ctx, link, name)
	return link, nil
}

// SharedPageURL returns the public page for a product name.
func (s *ShareLinks) SharedPageURL(name string) string {
	return s.origin + "/shared/" + url.PathEscape(name)
}

// RecordShareEvent stores and publishes the share in the background. The caller is never delayed and
// never sees a recording failure.
func (s *ShareLinks) RecordShareEvent(ctx context.Context, link ShareLink, name string) {
	if s.events == nil && s.publisher == nil {
		return
	}
	event := ShareEvent{
		ID:        s.newID(),
		Kind:      link.Kind,
		Keys:      append([]string(nil), link.Keys...),
		ShareURLs: append([]string(nil), link.ShareURLs...),
		Name:      name,
		SharedAt:  s.clock(),
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recordTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		s.record(recordCtx, event)
	}()
}

// Wait blocks until every background recording has finished.
func (s *ShareLinks) Wait() {
	s.inflight.Wait()
}

func (s *ShareLinks) record(ctx context.Context, event ShareEvent) {
	if s.events != nil {
		s.count(ctx, event, "firestore", s.events.Append(ctx, event))
	}
	if s.publisher != nil {
		_, err := s.publisher.PublishShareEvent(ctx, event)
		s.count(ctx, event, "pubsub", err)
	}
}

func (s *ShareLinks) count(ctx context.Context, event ShareEvent, sink string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(event.Kind)),
		attribute.String("sink", sink),
	)
	if err != nil {
		s.failed.Add(ctx, 1, attrs)
		s.logger(ctx, "share.record_failed", map[string]any{"eventId": event.ID, "sink": sink, "error": err})
		return
	}
	s.recorded.Add(ctx, 1, attrs)
}

func (s *ShareLinks) adminPhone(ctx context.Context) string {
	contact, err := s.contacts.FindAdmin(ctx)
	if err != nil {
		s.logger(ctx, "share.admin_lookup_failed", map[string]any{"error": err})
		return ""
	}
	return normalizePhone(contact.Phone)
}

func whatsAppURL(phone, message string) string {
	// WhatsApp expects %20 rather than '+' for spaces.
	return whatsAppBaseURL + phone + "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

func compactKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, key)
		}
	}
	return out
}
