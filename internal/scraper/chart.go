package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"quotescraper/internal/utils"
)

const (
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

var hundred = decimal.NewFromInt(100)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []decimal.NullDecimal `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartMeta struct {
	Symbol             string              `json:"symbol"`
	Currency           string              `json:"currency"`
	RegularMarketPrice decimal.NullDecimal `json:"regularMarketPrice"`
	PreviousClose      decimal.NullDecimal `json:"previousClose"`
}

type ChartOptions struct {
	Timeout      time.Duration
	UserAgent    string
	Retries      int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// ChartSource reads the Yahoo chart API over a two-day window: the price is
// the last daily close, the variation is measured against the close before it.
type ChartSource struct {
	client       *resty.Client
	marketSuffix string
	timeout      time.Duration
}

func NewChartSource(baseURL, suffix string, opts ChartOptions, logger *utils.Logger) *ChartSource {
	if opts.RetryWait == 0 {
		opts.RetryWait = defaultRetryWaitTime
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = defaultRetryMaxWaitTime
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryConditions(retryCondition).
		AddRetryHooks(func(r *resty.Response, err error) {
			if err != nil {
				logger.Debug("Retrying %s (attempt %d): %v", r.Request.URL, r.Request.Attempt, err)
				return
			}
			logger.Debug("Retrying %s (attempt %d): status %d", r.Request.URL, r.Request.Attempt, r.StatusCode())
		})
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &ChartSource{client: client, marketSuffix: suffix, timeout: opts.Timeout}
}

// retryCondition retries network errors, 408, 429 and 5xx.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code == 408 || code == 429 || code >= 500
}

func (s *ChartSource) Name() string   { return "chart" }
func (s *ChartSource) Suffix() string { return s.marketSuffix }

// Retrieve returns errors as non-retryable: resty has already retried.
func (s *ChartSource) Retrieve(ctx context.Context, symbol string) (Fields, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var result chartResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"range":    "2d",
			"interval": "1d",
		}).
		SetResult(&result).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return Fields{}, final(transportError(ctx, err))
	}
	if !resp.IsSuccess() {
		return Fields{}, final(ClassifyHTTPStatus(resp.StatusCode()))
	}

	if result.Chart.Error != nil {
		return Fields{}, &RetrieveError{Kind: KindClient, Message: fmt.Sprintf("%s: %s", result.Chart.Error.Code, result.Chart.Error.Description)}
	}
	if len(result.Chart.Result) == 0 {
		return Fields{}, NewMissingFieldError("chart result")
	}
	return fieldsFromResult(result.Chart.Result[0])
}

// closes returns the non-null daily closes in bar order.
func (r chartResult) closes() []decimal.Decimal {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	var closes []decimal.Decimal
	for i, c := range r.Indicators.Quote[0].Close {
		if !c.Valid || (len(r.Timestamp) > 0 && i >= len(r.Timestamp)) {
			continue
		}
		closes = append(closes, c.Decimal)
	}
	return closes
}

// fieldsFromResult compares the last daily close with the one before it.
// meta.chartPreviousClose predates the window (two sessions back) and is
// ignored. With fewer than two bars the price is regularMarketPrice against
// meta.previousClose, and a missing previousClose is a missing field.
func fieldsFromResult(r chartResult) (Fields, error) {
	var price, prev decimal.Decimal
	if closes := r.closes(); len(closes) >= 2 {
		price, prev = closes[len(closes)-1], closes[len(closes)-2]
	} else {
		meta := r.Meta
		switch {
		case meta.RegularMarketPrice.Valid:
			price = meta.RegularMarketPrice.Decimal
		case len(closes) == 1:
			price = closes[0]
		default:
			return Fields{}, NewMissingFieldError("regularMarketPrice")
		}
		if !meta.PreviousClose.Valid || meta.PreviousClose.Decimal.IsZero() {
			return Fields{}, NewMissingFieldError("previous close")
		}
		prev = meta.PreviousClose.Decimal
	}
	if prev.IsZero() {
		return Fields{}, NewMissingFieldError("previous close")
	}

	variation := price.Sub(prev)
	pct := variation.Div(prev).Mul(hundred)
	return Fields{
		Price:        price.String(),
		Variation:    variation.StringFixed(2),
		VariationPct: pct.StringFixed(2),
	}, nil
}

func final(err *RetrieveError) *RetrieveError {
	copied := *err
	copied.Retryable = false
	return &copied
}

// Check asks for a well-known symbol to prove the API answers.
func (s *ChartSource) Check(ctx context.Context) error {
	_, err := s.Retrieve(ctx, NormalizeSymbol("PETR4", s.marketSuffix))
	var re *RetrieveError
	if errors.As(err, &re) && re.Kind == KindMissingField {
		return nil
	}
	return err
}
