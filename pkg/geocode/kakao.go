package geocode

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Kakao REST API host.
const DefaultBaseURL = "https://dapi.kakao.com"

const addressSearchPath = "/v2/local/search/address.json"

type kakaoResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

type kakaoDocument struct {
	AddressName string `json:"address_name"`
	X           string `json:"x"`
	Y           string `json:"y"`
}

type kakaoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	rest       *resty.Client
}

// NewKakaoClient creates a Client for the Kakao address search API.
// No request is ever retried.
func NewKakaoClient(apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("geocode: kakao api key is required")
	}
	k := &kakaoClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.rest = resty.NewWithClient(k.httpClient).
		SetBaseURL(k.baseURL).
		SetHeader("Authorization", "KakaoAK "+k.apiKey).
		SetRetryCount(0)
	return k, nil
}

func (k *kakaoClient) Geocode(ctx context.Context, address string) (*Result, error) {
	if k.limiter != nil {
		if err := k.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: kakao rate limit")
		}
	}

	var body kakaoResponse
	resp, err := k.rest.R().
		SetContext(ctx).
		SetQueryParam("query", address).
		SetResult(&body).
		Get(addressSearchPath)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: kakao request")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, eris.Errorf("geocode: kakao returned status %d", resp.StatusCode())
	}

	if len(body.Documents) == 0 {
		return &Result{Matched: false, Source: "kakao"}, nil
	}

	doc := body.Documents[0]
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: kakao parse latitude %q", doc.Y)
	}
	lng, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: kakao parse longitude %q", doc.X)
	}
	return &Result{Latitude: lat, Longitude: lng, Source: "kakao", Matched: true}, nil
}
