package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cei-crawler/internal/components/assert"
	"cei-crawler/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

const (
	report_twocaptcha_submit = "twocaptcha.submit"
	report_twocaptcha_poll   = "twocaptcha.poll"
)

const notReady = "CAPCHA_NOT_READY"

// ErrUnsolvable is returned when the solving service rejects the challenge.
var ErrUnsolvable = errors.New("captcha could not be solved")

type TwoCaptchaOptions struct {
	ApiKey string
	// BaseUrl defaults to https://2captcha.com.
	BaseUrl string
	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
	// InitialDelay is waited before the first poll, it defaults to
	// PollInterval. Workers never finish a reCAPTCHA faster than that.
	InitialDelay time.Duration
	Telemetry    telemetry.API
}

// TwoCaptcha resolves challenges through the 2captcha.com HTTP API.
type TwoCaptcha struct {
	http   *resty.Client
	apiKey string
	poll   time.Duration
	delay  time.Duration
	tel    telemetry.API
}

func NewTwoCaptcha(opts TwoCaptchaOptions) *TwoCaptcha {
	assert.NotEmptyStr(opts.ApiKey)
	assert.NotNil(opts.Telemetry)

	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://2captcha.com"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = opts.PollInterval
	}

	tel := telemetry.NewScopedAPI("captcha", opts.Telemetry)

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(30 * time.Second)
	telemetry.InstrumentResty(client, tel, telemetry.RestyOptions{})

	return &TwoCaptcha{
		http:   client,
		apiKey: opts.ApiKey,
		poll:   opts.PollInterval,
		delay:  opts.InitialDelay,
		tel:    tel,
	}
}

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (c *TwoCaptcha) call(ctx context.Context, req *resty.Request, method, path string) (twoCaptchaResponse, error) {
	res, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return twoCaptchaResponse{}, err
	}
	if res.IsError() {
		return twoCaptchaResponse{}, fmt.Errorf("unexpected status %s", res.Status())
	}
	var parsed twoCaptchaResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		return twoCaptchaResponse{}, fmt.Errorf("unmarshal json: %w", err)
	}
	return parsed, nil
}

func (c *TwoCaptcha) Resolve(ctx context.Context, siteKey, pageUrl string) (string, error) {
	submitted, err := c.call(
		ctx,
		c.http.R().SetFormData(map[string]string{
			"key":       c.apiKey,
			"method":    "userrecaptcha",
			"googlekey": siteKey,
			"pageurl":   pageUrl,
			"json":      "1",
		}),
		resty.MethodPost,
		"/in.php",
	)
	if err != nil {
		c.tel.ReportBroken(report_twocaptcha_submit, err)
		return "", err
	}
	if submitted.Status != 1 {
		err := fmt.Errorf("%w: %s", ErrUnsolvable, submitted.Request)
		c.tel.ReportWarning(report_twocaptcha_submit, err)
		return "", err
	}
	id := submitted.Request
	c.tel.ReportDebug("captcha submitted", id)

	wait := c.delay
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait = c.poll

		result, err := c.call(
			ctx,
			c.http.R().SetQueryParams(map[string]string{
				"key":    c.apiKey,
				"action": "get",
				"id":     id,
				"json":   "1",
			}),
			resty.MethodGet,
			"/res.php",
		)
		if err != nil {
			c.tel.ReportBroken(report_twocaptcha_poll, err, id)
			return "", err
		}
		if result.Status == 1 {
			return result.Request, nil
		}
		if result.Request != notReady {
			err := fmt.Errorf("%w: %s", ErrUnsolvable, result.Request)
			c.tel.ReportWarning(report_twocaptcha_poll, err, id)
			return "", err
		}
	}
}
