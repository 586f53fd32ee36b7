package acurite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/diwise/integration-acurite/domain"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const (
	DefaultBaseURL string        = "https://marapi.myacurite.com"
	DefaultTimeout time.Duration = 20 * time.Second

	tokenHeader string = "X-ONE-VUE-TOKEN"
)

var (
	ErrAuth              = errors.New("authentication failed")
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoHub             = errors.New("no hub found for account")
	ErrBadStatus         = errors.New("unexpected status code")
	ErrTransport         = errors.New("transport failure")
	ErrTimeout           = errors.New("request timed out")
)

type Client interface {
	Login(ctx context.Context, user, password string) (domain.Credential, error)
	GetHubs(ctx context.Context, cred domain.Credential) ([]domain.Hub, error)
	GetHubDevices(ctx context.Context, cred domain.Credential, hubID domain.ID) ([]*domain.Device, error)
	FetchDevices(ctx context.Context, cred domain.Credential) ([]*domain.Device, error)
}

type client struct {
	baseUrl    string
	httpClient http.Client
}

var tracer = otel.Tracer("integration-acurite/acurite")

func New(baseUrl string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &client{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

func (c *client) Login(ctx context.Context, user, password string) (domain.Credential, error) {
	var err error

	ctx, span := tracer.Start(ctx, "login")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var body []byte
	body, err = json.Marshal(map[string]string{"email": user, "password": password})
	if err != nil {
		err = fmt.Errorf("%w: failed to marshal login body: %s", ErrAuth, err.Error())
		return domain.Credential{}, err
	}

	loginResponse := domain.LoginResponse{}

	err = c.do(ctx, http.MethodPost, c.baseUrl+"/users/login", "", bytes.NewReader(body), &loginResponse)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAuth, err)
		return domain.Credential{}, err
	}

	if loginResponse.TokenID == "" {
		err = fmt.Errorf("%w: %w: token_id missing", ErrAuth, ErrMalformedResponse)
		return domain.Credential{}, err
	}

	if len(loginResponse.User.AccountUsers) == 0 || loginResponse.User.AccountUsers[0].AccountID == "" {
		err = fmt.Errorf("%w: %w: account_users[0].account_id missing", ErrAuth, ErrMalformedResponse)
		return domain.Credential{}, err
	}

	return domain.Credential{
		Token:     loginResponse.TokenID,
		AccountID: loginResponse.User.AccountUsers[0].AccountID.String(),
	}, nil
}

func (c *client) GetHubs(ctx context.Context, cred domain.Credential) ([]domain.Hub, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-hubs")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	hubs := domain.HubsResponse{}

	url := fmt.Sprintf("%s/accounts/%s/dashboard/hubs", c.baseUrl, cred.AccountID)

	err = c.do(ctx, http.MethodGet, url, cred.Token, nil, &hubs)
	if err != nil {
		err = fmt.Errorf("failed to retrieve list of hubs: %w", err)
		return nil, err
	}

	return hubs.AccountHubs, nil
}

func (c *client) GetHubDevices(ctx context.Context, cred domain.Credential, hubID domain.ID) ([]*domain.Device, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-hub-devices")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if hubID == "" {
		err = fmt.Errorf("cannot retrieve devices as no hub id has been provided: %w", ErrNoHub)
		return nil, err
	}

	detail := domain.HubDetailResponse{}

	url := fmt.Sprintf("%s/accounts/%s/dashboard/hubs/%s", c.baseUrl, cred.AccountID, hubID)

	err = c.do(ctx, http.MethodGet, url, cred.Token, nil, &detail)
	if err != nil {
		err = fmt.Errorf("failed to retrieve devices for hub %s: %w", hubID, err)
		return nil, err
	}

	return detail.Devices, nil
}

func (c *client) FetchDevices(ctx context.Context, cred domain.Credential) ([]*domain.Device, error) {
	hubs, err := c.GetHubs(ctx, cred)
	if err != nil {
		return nil, err
	}

	if len(hubs) == 0 {
		return nil, ErrNoHub
	}

	return c.GetHubDevices(ctx, cred, hubs[0].ID)
}

func (c *client) do(ctx context.Context, method, url, token string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %s", err.Error())
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	if token != "" {
		req.Header.Add(tokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s", ErrTimeout, err.Error())
		}
		return fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: expected status code %d, got %d", ErrBadStatus, http.StatusOK, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s", ErrTimeout, err.Error())
		}
		return fmt.Errorf("%w: failed to read response body: %s", ErrTransport, err.Error())
	}

	err = json.Unmarshal(respBytes, result)
	if err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %s", ErrMalformedResponse, err.Error())
	}

	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
