package firoam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
)

// AttemptStore persists vendor order attempts; implemented by the repository.
type AttemptStore interface {
	CreateVendorOrderAttempt(ctx context.Context, a *domain.VendorOrderAttempt) error
}

// Encrypter seals a canonical payload before it is written anywhere.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

type Config struct {
	BaseURL    string
	Phone      string
	Password   string
	SignSecret string
	Timeout    time.Duration // default 15s
	RPS        float64       // default 5
}

// Client issues signed vendor calls. One instance owns one Session; workers
// share the instance, the session mutex keeps token refresh single-flight.
type Client struct {
	baseURL  string
	phone    string
	password string
	secret   string

	http     *http.Client
	limiter  *rate.Limiter
	session  *Session
	attempts AttemptStore
	enc      Encrypter
}

func NewClient(cfg Config, attempts AttemptStore, enc Encrypter) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		phone:    cfg.Phone,
		password: cfg.Password,
		secret:   cfg.SignSecret,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)),
		session:  &Session{},
		attempts: attempts,
		enc:      enc,
	}
}

// Коды, после которых надо перелогиниться и повторить вызов.
func isLoginRequired(r *Response) bool {
	if string(r.Code) == "-1" {
		return true
	}
	msg := strings.ToLower(r.Message())
	return strings.Contains(msg, "token expire") || strings.Contains(msg, "login required")
}

func (c *Client) login(ctx context.Context) (string, error) {
	var token string
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		params := map[string]string{
			"phone":    c.phone,
			"password": c.password,
		}
		params["sign"] = Sign(params, c.secret)

		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/login?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		httpResp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer httpResp.Body.Close()

		var resp Response
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return retry.RetryableError(fmt.Errorf("firoam: login decode: %w", err))
		}
		if !resp.OK() {
			// Неверные креды ретраить бессмысленно.
			return fmt.Errorf("firoam: login failed: code=%s %s", resp.Code, resp.Message())
		}
		var data struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil || data.Token == "" {
			return fmt.Errorf("firoam: login response without token")
		}
		token = data.Token
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.Info("firoam login ok")
	return token, nil
}

func (c *Client) signedPost(ctx context.Context, path string, params map[string]string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.session.Token(ctx, c.login)
	if err != nil {
		return nil, err
	}

	form := map[string]string{"token": token}
	for k, v := range params {
		form[k] = v
	}
	form["sign"] = Sign(form, c.secret)

	body := url.Values{}
	for k, v := range form {
		body.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firoam: %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("firoam: %s: vendor http %d", path, httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("firoam: %s: decode: %w", path, err)
	}
	return &resp, nil
}

// call делает подписанный вызов; на login-required сбрасывает сессию,
// логинится заново и повторяет вызов один раз.
func (c *Client) call(ctx context.Context, path string, params map[string]string) (*Response, error) {
	resp, err := c.signedPost(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if isLoginRequired(resp) {
		c.session.Invalidate()
		logger.Warn("firoam token rejected, re-login", "path", path, "code", resp.Code)
		return c.signedPost(ctx, path, params)
	}
	return resp, nil
}

func validateOrderPayload(p *domain.OrderPayload) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Sku, validation.Required),
		validation.Field(&p.Count, validation.Required, validation.Min(1)),
	)
}

func orderParams(p *domain.OrderPayload) map[string]string {
	params := map[string]string{
		"sku":   p.Sku,
		"count": strconv.Itoa(p.Count),
	}
	if p.PackageType != "" {
		params["type"] = p.PackageType
	}
	if p.Days > 0 {
		params["days"] = strconv.Itoa(p.Days)
	}
	// Недокументированные поля вендора идут как есть, но документированные
	// они перекрывать не могут.
	for k, v := range p.Extra {
		if _, taken := params[k]; !taken {
			params[k] = v
		}
	}
	return params
}

// PlaceOrder places a vendor order and converges both response flavors on one
// canonical payload:
//   - one-step: data object already carries orderNum and a card list
//   - two-step: data is a bare order number (or an object without cards) and
//     the cards come from a follow-up getOrderDetails call
//
// A vendor business rejection (out of stock, bad sku) is a data result, not
// an error. A placed order whose card data fails validation is persisted as
// an invalid_payload attempt and returned with Canonical=nil.
func (c *Client) PlaceOrder(ctx context.Context, p domain.OrderPayload) (*OrderResult, error) {
	if err := validateOrderPayload(&p); err != nil {
		return nil, fmt.Errorf("firoam: order payload: %w", err)
	}

	resp, err := c.call(ctx, "/addOrder", orderParams(&p))
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return &OrderResult{Raw: resp, Code: resp.Code, Message: resp.Message()}, nil
	}

	orderNum, detail, err := parseOrderData(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("firoam: addOrder data: %w", err)
	}

	rawDetail := resp.Data
	if detail == nil {
		// two-step: номер есть, карт нет — добираем детали отдельным вызовом
		dresp, err := c.GetOrderDetails(ctx, orderNum)
		if err != nil {
			return nil, err
		}
		if !dresp.OK() {
			return &OrderResult{
				Raw: dresp, Code: dresp.Code, Message: dresp.Message(),
				VendorReferenceID: orderNum,
			}, nil
		}
		if err := json.Unmarshal(dresp.Data, &detail); err != nil {
			return nil, fmt.Errorf("firoam: getOrderDetails data: %w", err)
		}
		rawDetail = dresp.Data
	}

	result := &OrderResult{Raw: resp, Success: true, Code: resp.Code, VendorReferenceID: orderNum}

	canonical, nerr := NormalizeDetail(orderNum, detail)
	attempt := &domain.VendorOrderAttempt{
		VendorReferenceID: orderNum,
		PayloadJSON:       string(rawDetail),
	}
	if nerr != nil {
		attempt.Status = domain.AttemptInvalidPayload
		attempt.LastError = nerr.Error()
		if serr := c.attempts.CreateVendorOrderAttempt(ctx, attempt); serr != nil {
			return nil, serr
		}
		logger.Warn("vendor order placed but payload unusable", "orderNum", orderNum, "err", nerr)
		result.AttemptID = attempt.ID
		return result, nil
	}

	serialized, err := json.Marshal(canonical)
	if err != nil {
		return nil, err
	}
	sealed, err := c.enc.Encrypt(serialized)
	if err != nil {
		return nil, err
	}
	attempt.Status = domain.AttemptCreated
	attempt.PayloadEncrypted = sealed
	if err := c.attempts.CreateVendorOrderAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	result.Canonical = canonical
	result.AttemptID = attempt.ID
	return result, nil
}

// parseOrderData handles the two shapes of addOrder data: a bare string order
// number, or an object with orderNum and possibly the card list inline.
func parseOrderData(data json.RawMessage) (string, map[string]any, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return "", nil, errors.New("empty order number")
		}
		return s, nil, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("unexpected shape: %w", err)
	}
	orderNum := asString(obj["orderNum"])
	if orderNum == "" {
		return "", nil, errors.New("orderNum missing")
	}
	if _, ok := extractCards(obj); ok {
		return orderNum, obj, nil // one-step
	}
	return orderNum, nil, nil
}

func (c *Client) GetOrderDetails(ctx context.Context, orderNum string) (*Response, error) {
	return c.call(ctx, "/getOrderDetails", map[string]string{"orderNum": orderNum})
}

func (c *Client) ListSkus(ctx context.Context) (*SkusResult, error) {
	return c.listSkus(ctx, "/listSkus", nil)
}

func (c *Client) ListSkusByRegion(ctx context.Context, region string) (*SkusResult, error) {
	return c.listSkus(ctx, "/listSkusByRegion", map[string]string{"region": region})
}

func (c *Client) listSkus(ctx context.Context, path string, params map[string]string) (*SkusResult, error) {
	resp, err := c.call(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return &SkusResult{Raw: resp, Message: resp.Message()}, nil
	}
	var skus []Sku
	if err := json.Unmarshal(resp.Data, &skus); err != nil {
		return nil, fmt.Errorf("firoam: %s data: %w", path, err)
	}
	return &SkusResult{Raw: resp, Success: true, Skus: skus}, nil
}

func (c *Client) ListPackages(ctx context.Context, skuID string) (*PackagesResult, error) {
	resp, err := c.call(ctx, "/listPackages", map[string]string{"skuId": skuID})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return &PackagesResult{Raw: resp, Message: resp.Message()}, nil
	}
	var pkgs []Package
	if err := json.Unmarshal(resp.Data, &pkgs); err != nil {
		return nil, fmt.Errorf("firoam: listPackages data: %w", err)
	}
	return &PackagesResult{Raw: resp, Success: true, Packages: pkgs}, nil
}

// CancelOrder sends the minimal refund payload. Remark-style fields are left
// out: the vendor is known to mis-sign requests that include them. Vendor
// rejections (wrong order id, expired token, bad signature) come back as
// Success=false with the message preserved verbatim.
func (c *Client) CancelOrder(ctx context.Context, orderNum string, iccids []string) (*CancelResult, error) {
	params := map[string]string{
		"orderNum": orderNum,
		"iccids":   strings.Join(iccids, ","),
	}
	resp, err := c.call(ctx, "/refundOrder", params)
	if err != nil {
		return nil, err
	}
	return &CancelResult{
		Raw:     resp,
		Success: resp.OK(),
		Code:    resp.Code,
		Message: resp.Message(),
	}, nil
}
