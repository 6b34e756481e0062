package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"propertyFeedWs/internal/modules/feeds/application/port"
	realtime "propertyFeedWs/internal/modules/realtime/domain"
)

// ErrUpstreamStatus is returned when the data service answers with a non-200 status.
var ErrUpstreamStatus = errors.New("unexpected upstream status")

var sourcePaths = map[realtime.Kind]string{
	realtime.KindProperty:       "/property-data",
	realtime.KindMarket:         "/market-data",
	realtime.KindInfrastructure: "/infrastructure-data",
}

// HTTPSource pulls the latest record of a kind from the data infrastructure service.
type HTTPSource struct {
	rest *RESTClient
	now  func() time.Time
}

func NewHTTPSource(baseURL string, timeout time.Duration, client *http.Client) *HTTPSource {
	return &HTTPSource{rest: NewRESTClient(baseURL, timeout, client), now: time.Now}
}

func (s *HTTPSource) Fetch(ctx context.Context, kind realtime.Kind) (realtime.DomainEvent, error) {
	path, ok := sourcePaths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", realtime.ErrUnsupportedEventKind, kind)
	}
	req, err := s.rest.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.rest.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer res.Body.Close()

	slog.Debug("data feed response", slog.Int("status", res.StatusCode), slog.String("url", req.URL.String()))
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return nil, fmt.Errorf("%w %d from %s: %s", ErrUpstreamStatus, res.StatusCode, path, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.decode(kind, data)
}

// legacyFields covers upstream records that carry a bare id and no header. Older
// infrastructure records name their category "type".
type legacyFields struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (s *HTTPSource) decode(kind realtime.Kind, data []byte) (realtime.DomainEvent, error) {
	var header realtime.EventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", realtime.ErrMalformedEvent, err)
	}
	if got := strings.ToLower(strings.TrimSpace(string(header.Kind))); got != "" && realtime.Kind(got) != kind {
		return nil, fmt.Errorf("%w: upstream returned %q for %s", realtime.ErrMalformedEvent, got, kind)
	}
	var legacy legacyFields
	_ = json.Unmarshal(data, &legacy)

	now := s.now()
	id := header.EventID
	if id == "" {
		id = uuid.NewString()
	}
	at := header.EmittedAt
	if at.IsZero() {
		at = now
	}

	var evt realtime.DomainEvent
	switch kind {
	case realtime.KindProperty:
		evt = realtime.NewPropertyEvent(id, at)
	case realtime.KindMarket:
		evt = realtime.NewMarketEvent(id, at)
	default:
		evt = realtime.NewInfrastructureEvent(id, at)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", realtime.ErrMalformedEvent, kind, err)
	}

	switch e := evt.(type) {
	case *realtime.PropertyEvent:
		e.Kind = kind
		e.PropertyID = firstNonEmpty(e.PropertyID, legacy.ID)
	case *realtime.MarketEvent:
		e.Kind = kind
		e.MarketID = firstNonEmpty(e.MarketID, legacy.ID)
	case *realtime.InfrastructureEvent:
		e.Kind = kind
		e.ProjectID = firstNonEmpty(e.ProjectID, legacy.ID)
		e.Category = firstNonEmpty(e.Category, legacy.Type)
	}
	return evt, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ port.Source = (*HTTPSource)(nil)
