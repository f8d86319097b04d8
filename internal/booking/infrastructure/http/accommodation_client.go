package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samilyak/stayflow/internal/booking/application"
)

// AccommodationClient calls the inventory ledger's synchronous surface during
// the creation handshake. Requests authenticate with the shared service
// credential.
type AccommodationClient struct {
	baseURL  string
	id       string
	secret   string
	httpClnt *http.Client
}

func NewAccommodationClient(baseURL, serviceID, serviceSecret string) *AccommodationClient {
	return &AccommodationClient{
		baseURL:  baseURL,
		id:       serviceID,
		secret:   serviceSecret,
		httpClnt: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *AccommodationClient) GetUnit(ctx context.Context, id int64) (application.UnitInfo, error) {
	var out struct {
		ID        int64 `json:"id"`
		Version   int64 `json:"version"`
		DailyRate int64 `json:"dailyRate"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/accommodations/%d", c.baseURL, id), &out); err != nil {
		return application.UnitInfo{}, err
	}
	return application.UnitInfo{ID: out.ID, Version: out.Version, DailyRate: out.DailyRate}, nil
}

func (c *AccommodationClient) CheckAvailability(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	q := url.Values{}
	q.Set("checkIn", checkIn.Format("2006-01-02"))
	q.Set("checkOut", checkOut.Format("2006-01-02"))
	var out struct {
		Available bool `json:"available"`
	}
	err := c.get(ctx, fmt.Sprintf("%s/accommodations/%d/availability?%s", c.baseURL, id, q.Encode()), &out)
	if err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *AccommodationClient) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Service-Id", c.id)
	req.Header.Set("X-Service-Secret", c.secret)

	resp, err := c.httpClnt.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("accommodation service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
