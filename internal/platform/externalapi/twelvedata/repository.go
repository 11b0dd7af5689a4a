package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/usecase"
	"forex_backend/internal/platform/externalapi/twelvedata/dto"
)

// maxBodyBytes は1レスポンスの上限です。5000本でも数百KB程度に収まります。
const maxBodyBytes = 8 << 20

var datetimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

// TwelveDataMarket はTwelve Data外部APIから相場データを取得するMarketRepository実装です。
type TwelveDataMarket struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// TwelveDataMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*TwelveDataMarket)(nil)

// NewTwelveDataMarket は指定された設定とHTTPクライアントでTwelveDataMarketの新しいインスタンスを生成します。
func NewTwelveDataMarket(cfg Config, client *http.Client, logger *zap.Logger) *TwelveDataMarket {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwelveDataMarket{cfg: cfg.withDefaults(), client: client, logger: logger}
}

// GetTimeSeries はTwelve Data APIから時系列データを1回取得し、行ごとに検証します。
// 検証に失敗した行は MalformedRow として返し、呼び出し全体は失敗させません。
func (t *TwelveDataMarket) GetTimeSeries(ctx context.Context, q usecase.TimeSeriesQuery) (entity.TimeSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.buildURL(q), nil)
	if err != nil {
		return entity.TimeSeries{}, err
	}

	// リクエストを実行
	res, err := t.client.Do(req)
	if err != nil {
		return entity.TimeSeries{}, &ProviderError{Transient: true, Err: err}
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			t.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return entity.TimeSeries{}, &ProviderError{StatusCode: res.StatusCode, Transient: true, Err: err}
	}

	if res.StatusCode >= 400 {
		return entity.TimeSeries{}, &ProviderError{
			StatusCode: res.StatusCode,
			Message:    gjson.GetBytes(body, "message").String(),
			Transient:  isTransientStatus(res.StatusCode),
		}
	}

	if !gjson.ValidBytes(body) {
		return entity.TimeSeries{}, &ProviderError{StatusCode: res.StatusCode, Message: "invalid JSON payload", Transient: true}
	}
	// HTTP 200 のエラーエンベロープ: {"status":"error","code":429,"message":"..."}
	if gjson.GetBytes(body, "status").String() == "error" {
		code := int(gjson.GetBytes(body, "code").Int())
		return entity.TimeSeries{}, &ProviderError{
			StatusCode: res.StatusCode,
			Code:       code,
			Message:    gjson.GetBytes(body, "message").String(),
			Transient:  isTransientStatus(code),
		}
	}

	var payload dto.TimeSeriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return entity.TimeSeries{}, &ProviderError{StatusCode: res.StatusCode, Message: "decode time_series", Err: err}
	}

	return parseValues(payload.Values), nil
}

func (t *TwelveDataMarket) buildURL(q usecase.TimeSeriesQuery) string {
	v := url.Values{}
	// クエリパラメータを追加
	v.Set("symbol", q.Symbol)
	v.Set("interval", q.Interval)
	if q.IsRange() {
		v.Set("start_date", q.Start.UTC().Format(datetimeLayouts[0]))
		v.Set("end_date", q.End.UTC().Format(datetimeLayouts[0]))
	}
	if q.OutputSize > 0 {
		v.Set("outputsize", strconv.Itoa(q.OutputSize))
	}
	v.Set("timezone", "UTC")
	v.Set("order", "asc")
	v.Set("format", "JSON")
	v.Set("apikey", t.cfg.TwelveDataAPIKey)

	return fmt.Sprintf("%s/time_series?%s", strings.TrimRight(t.cfg.BaseURL, "/"), v.Encode())
}

// parseValues は各行を検証して Candle に変換します。結果は時刻の昇順です。
func parseValues(values []json.RawMessage) entity.TimeSeries {
	ts := entity.TimeSeries{Candles: make([]entity.Candle, 0, len(values))}
	for i, raw := range values {
		var v dto.TimeSeriesValue
		if err := json.Unmarshal(raw, &v); err != nil {
			ts.Rejected = append(ts.Rejected, entity.MalformedRow{Index: i, Raw: string(raw), Reason: "decode row: " + err.Error()})
			continue
		}
		c, err := parseValue(v)
		if err != nil {
			ts.Rejected = append(ts.Rejected, entity.MalformedRow{Index: i, Raw: string(raw), Reason: err.Error()})
			continue
		}
		ts.Candles = append(ts.Candles, c)
	}
	// order=asc が無視された場合に備え、新しい順なら反転する
	if n := len(ts.Candles); n > 1 && ts.Candles[0].Time.After(ts.Candles[n-1].Time) {
		slices.Reverse(ts.Candles)
	}
	return ts
}

func parseValue(v dto.TimeSeriesValue) (entity.Candle, error) {
	tm, err := parseDatetime(v.Datetime)
	if err != nil {
		return entity.Candle{}, err
	}

	o, err := parsePrice("open", v.Open)
	if err != nil {
		return entity.Candle{}, err
	}
	h, err := parsePrice("high", v.High)
	if err != nil {
		return entity.Candle{}, err
	}
	l, err := parsePrice("low", v.Low)
	if err != nil {
		return entity.Candle{}, err
	}
	c, err := parsePrice("close", v.Close)
	if err != nil {
		return entity.Candle{}, err
	}
	if h.LessThan(l) || h.LessThan(o) || h.LessThan(c) || l.GreaterThan(o) || l.GreaterThan(c) {
		return entity.Candle{}, fmt.Errorf("inconsistent ohlc: open=%s high=%s low=%s close=%s", o, h, l, c)
	}

	var vol int64
	if v.Volume != "" {
		d, err := decimal.NewFromString(v.Volume)
		if err != nil || d.IsNegative() {
			return entity.Candle{}, fmt.Errorf("parse volume %q", v.Volume)
		}
		vol = d.IntPart()
	}

	return entity.Candle{
		Time:   tm,
		Open:   o.InexactFloat64(),
		High:   h.InexactFloat64(),
		Low:    l.InexactFloat64(),
		Close:  c.InexactFloat64(),
		Volume: vol,
	}, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if tm, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return tm, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

func parsePrice(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q", field, s)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: price must be positive", field, s)
	}
	return d, nil
}
