// Package geo resolves postal addresses to coordinates through external
// geocoding providers. A location the providers cannot place keeps the
// sentinel coordinates; errors are reserved for transport or provider
// trouble so callers can tell "unknown address" from "provider down".
package geo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

// TestPostalCode resolves without any network call, to the north pole.
// Kept for loop-back validation of the whole pipeline.
const TestPostalCode = "H0H0H0"

const defaultTimeout = 10 * time.Second

// Geocoder resolves Canadian postal codes through an XML endpoint and US
// zip codes through a CSV endpoint.
type Geocoder struct {
	client *http.Client
	caBase string
	usBase string
}

// Option adjusts a Geocoder.
type Option func(*Geocoder)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Geocoder) { g.client = client }
}

// WithCanadaEndpoint overrides the Canadian provider base URL.
func WithCanadaEndpoint(base string) Option {
	return func(g *Geocoder) { g.caBase = base }
}

// WithUSEndpoint overrides the US provider base URL.
func WithUSEndpoint(base string) Option {
	return func(g *Geocoder) { g.usBase = base }
}

// New constructs a geocoder with a bounded default timeout.
func New(opts ...Option) *Geocoder {
	g := &Geocoder{
		client: &http.Client{Timeout: defaultTimeout},
		caBase: "https://geocoder.ca/",
		usBase: "https://geocoder.us/service/csv/geocode",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve fills in the location's coordinates. Unknown addresses and
// unsupported countries come back with sentinel coordinates and a nil
// error; only transport failures are errors.
func (g *Geocoder) Resolve(ctx context.Context, location domain.Location) (domain.Location, error) {
	location.Latitude = domain.InvalidCoordinate
	location.Longitude = domain.InvalidCoordinate

	postal := strings.ToUpper(strings.ReplaceAll(location.PostalCode, " ", ""))
	if postal == TestPostalCode {
		location.Latitude = 90.0
		location.Longitude = 0.0
		return location, nil
	}

	var lat, lng float64
	var err error
	switch strings.ToUpper(location.CountryCode) {
	case "CA":
		lat, lng, err = g.resolveCanada(ctx, postal)
	case "US":
		lat, lng, err = g.resolveUS(ctx, postal)
	default:
		return location, nil
	}
	if err != nil {
		return location, err
	}

	// Providers occasionally answer with junk outside the valid ranges.
	if lat < -90.0 || 90.0 < lat || lng < -180.0 || 180.0 < lng {
		return location, nil
	}
	location.Latitude = lat
	location.Longitude = lng
	return location, nil
}

// resolveCanada scans the provider's XML line-wise for latt/longt elements,
// bailing out on an error element.
func (g *Geocoder) resolveCanada(ctx context.Context, postal string) (float64, float64, error) {
	query := url.Values{"geoit": {"xml"}, "postal": {postal}}
	body, err := g.fetch(ctx, g.caBase+"?"+query.Encode())
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	lat := domain.InvalidCoordinate
	lng := domain.InvalidCoordinate
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "<error>") {
			break
		}
		if value, ok := xmlElement(line, "latt"); ok {
			lat, err = strconv.ParseFloat(value, 64)
			if err != nil {
				return domain.InvalidCoordinate, domain.InvalidCoordinate, nil
			}
		}
		if value, ok := xmlElement(line, "longt"); ok {
			lng, err = strconv.ParseFloat(value, 64)
			if err != nil {
				return domain.InvalidCoordinate, domain.InvalidCoordinate, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("read geocoder response: %w", err)
	}
	return lat, lng, nil
}

// resolveUS reads the provider's single CSV line: "lat, lng, ...".
func (g *Geocoder) resolveUS(ctx context.Context, zip string) (float64, float64, error) {
	query := url.Values{"zip": {zip}}
	body, err := g.fetch(ctx, g.usBase+"?"+query.Encode())
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, 0, fmt.Errorf("read geocoder response: %w", err)
		}
		return domain.InvalidCoordinate, domain.InvalidCoordinate, nil
	}
	parts := strings.Split(scanner.Text(), ",")
	if len(parts) < 2 {
		return domain.InvalidCoordinate, domain.InvalidCoordinate, nil
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lngErr != nil {
		return domain.InvalidCoordinate, domain.InvalidCoordinate, nil
	}
	return lat, lng, nil
}

func (g *Geocoder) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocoder request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call geocoder: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("geocoder responded %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func xmlElement(line, name string) (string, bool) {
	open := "<" + name + ">"
	closing := "</" + name + ">"
	start := strings.Index(line, open)
	if start < 0 {
		return "", false
	}
	end := strings.Index(line, closing)
	if end < 0 || end < start {
		return "", false
	}
	return strings.TrimSpace(line[start+len(open) : end]), true
}

var _ ports.Geocoder = (*Geocoder)(nil)
