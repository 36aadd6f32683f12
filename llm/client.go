package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/utils"
)

const (
	maxAttempts   = 10
	minConfidence = 50
)

var confidenceRegexp = regexp.MustCompile(`(\d{1,3})%`)

// backendSupervisor is the part of Supervisor the client drives. Kept small
// so tests can substitute a fake.
type backendSupervisor interface {
	EnsureRunning(ctx context.Context) error
	Stop()
}

// Client queries a local text generation backend and normalizes its answers.
// A Client with an attached supervisor keeps the backend alive across
// queries; without one it talks to whatever the endpoint points at.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	sup        backendSupervisor
	traffic    io.Writer
	logger     *utils.Logger
}

// NewClient creates a Client for the given endpoint and model. sup may be
// nil for externally managed backends; traffic may be nil to disable the
// prompt/response log.
func NewClient(endpoint, model string, timeout time.Duration, sup *Supervisor, traffic io.Writer, logger *utils.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      model,
		traffic:    traffic,
		logger:     logger,
	}
	if sup != nil {
		c.sup = sup
	}
	return c
}

// InferGender asks the model for the advertiser's gender and returns the
// normalized "<gender> <percent>%" form.
func (c *Client) InferGender(ctx context.Context, listing *models.Listing) (string, error) {
	return c.Query(ctx, GenderPrompt(listing), NormalizeGender, true, "unknown 0%")
}

// InferAudience asks the model which gender the ad addresses and returns the
// normalized audience label.
func (c *Client) InferAudience(ctx context.Context, listing *models.Listing) (string, error) {
	return c.Query(ctx, AudiencePrompt(listing), NormalizeAudience, false, models.UnknownAudience)
}

// Query sends prompt to the backend and retries until normalize accepts the
// answer, up to 10 attempts without pausing in between. Transport failures,
// non-OK statuses and empty payloads count against the attempt budget and
// end in an *InferenceUnavailableError. A normalization failure on the final
// attempt returns fallback instead of an error; a low-confidence answer on
// the final attempt is accepted as-is.
func (c *Client) Query(ctx context.Context, prompt string, normalize func(string) (string, error), enforceConfidence bool, fallback string) (string, error) {
	if c.sup != nil {
		if err := c.sup.EnsureRunning(ctx); err != nil {
			return "", err
		}
	}

	c.logTraffic("→ Prompt (Modell='%s', Endpoint='%s'):\n%s", c.model, c.endpoint, prompt)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, status, err := c.send(ctx, prompt)
		if err != nil {
			lastErr = err
			c.logger.Warn("[llm] Attempt %d/%d: request failed: %v", attempt, maxAttempts, err)
			continue
		}

		// A 404 on a supervised backend means the server lost the model
		// route; restart it and resend within the same attempt.
		if status == http.StatusNotFound && c.sup != nil {
			c.logger.Warn("[llm] Backend answered 404 — restarting it")
			c.sup.Stop()
			if err := c.sup.EnsureRunning(ctx); err != nil {
				return "", err
			}
			raw, status, err = c.send(ctx, prompt)
			if err != nil {
				lastErr = err
				continue
			}
		}

		if status != http.StatusOK {
			lastErr = fmt.Errorf("backend returned status %d", status)
			c.logger.Warn("[llm] Attempt %d/%d: %v", attempt, maxAttempts, lastErr)
			continue
		}

		if strings.TrimSpace(raw) == "" {
			lastErr = ErrEmptyResponse
			continue
		}

		normalized, err := normalize(raw)
		if err != nil {
			if attempt == maxAttempts {
				c.logger.Warn("[llm] Giving up on normalization — using fallback %q", fallback)
				c.logTraffic("← Antwort (Modell='%s', Endpoint='%s'): %s", c.model, c.endpoint, fallback)
				return fallback, nil
			}
			lastErr = err
			continue
		}

		if enforceConfidence && attempt < maxAttempts && confidence(normalized) < minConfidence {
			lastErr = fmt.Errorf("confidence below %d%% in %q", minConfidence, normalized)
			continue
		}

		c.logTraffic("← Antwort (Modell='%s', Endpoint='%s'): %s", c.model, c.endpoint, normalized)
		return normalized, nil
	}

	return "", &InferenceUnavailableError{Attempts: maxAttempts, Err: lastErr}
}

// send performs one POST to the backend. It returns the payload text (from
// the "response" field, falling back to "output"), the HTTP status, and a
// transport error if the request never produced a status.
func (c *Client) send(ctx context.Context, prompt string) (string, int, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	var parsed struct {
		Response string `json:"response"`
		Output   string `json:"output"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("decoding backend response: %w", err)
	}
	text := parsed.Response
	if text == "" {
		text = parsed.Output
	}
	return text, resp.StatusCode, nil
}

// confidence extracts the percentage from a normalized answer, 0 when none
// is present.
func confidence(normalized string) int {
	m := confidenceRegexp.FindStringSubmatch(normalized)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) logTraffic(format string, args ...any) {
	if c.traffic == nil {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(c.traffic, "[%s] "+format+"\n", append([]any{ts}, args...)...)
}

// GenderPrompt builds the German inference prompt for the advertiser's
// gender. The instruction wording matches the vocabulary the normalizer
// accepts.
func GenderPrompt(listing *models.Listing) string {
	parts := []string{"Anzeigetext:"}
	if listing.Title != "" {
		parts = append(parts, "Titel: "+listing.Title)
	}
	if listing.Body != "" {
		parts = append(parts, listing.Body)
	}
	if listing.Username != "" && listing.Username != models.Unspecified {
		parts = append(parts, "Nutzername: "+listing.Username)
	}
	parts = append(parts,
		"Antworte ausschließlich mit einer einzigen Zeile im Format "+
			"'weiblich/männlich/divers/unbekannt 0-100%'. Keine spitzen Klammern oder andere Sonderzeichen, "+
			"keine weiteren Wörter, keine Namen, keine Erklärungen oder Beispiele. "+
			"Antworte nur mit dem wahrscheinlichste Geschlecht und der Wahrscheinlichkeit. "+
			"Die Prozentzahl darf nicht 50% sein. "+
			"Passagen wie 'ich bin männlich', 'ich bin m' oder ähnliche Selbstbeschreibungen "+
			"sind eindeutige Hinweise auf männlich.")
	return strings.Join(parts, "\n\n")
}

// AudiencePrompt builds the German inference prompt for the gender the ad
// addresses.
func AudiencePrompt(listing *models.Listing) string {
	parts := []string{"Anzeigetext:"}
	if listing.Title != "" {
		parts = append(parts, "Titel: "+listing.Title)
	}
	if listing.Body != "" {
		parts = append(parts, listing.Body)
	}
	if listing.Username != "" && listing.Username != models.Unspecified {
		parts = append(parts, "Nutzername: "+listing.Username)
	}
	parts = append(parts,
		"Du bist ein präziser Textklassifizierer. Bestimme, an welches Geschlecht sich die Anzeige richtet "+
			"(angesprochene Zielgruppe, nicht das Geschlecht der schreibenden Person). Wähle strikt eines der "+
			"Wörter 'männlich', 'weiblich', 'divers' (für trans/non-binär), 'bi' (wenn explizit beide oder alle gemeint) "+
			"oder 'unbekannt', falls der Text keine eindeutigen Hinweise liefert. Wenn der Text mehrere Geschlechter anspricht, "+
			"nutze 'bi'. Antworte ausschließlich mit genau diesem einen Wort, ohne Begründung oder weitere Zeichen.")
	return strings.Join(parts, "\n\n")
}
