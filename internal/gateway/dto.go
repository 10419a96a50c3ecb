package gateway

import (
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/markethours"
	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

type errorResponse struct {
	Error string `json:"error"`
}

// connectedData is the payload of the first frame on every stream.
type connectedData struct {
	SinkID  string             `json:"sinkId"`
	Symbols []string           `json:"symbols"`
	Market  markethours.Status `json:"market"`
}

// controlRequest is the POST /api/market/stream body.
type controlRequest struct {
	SinkID  string   `json:"sinkId"`
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

type controlResponse struct {
	SinkID  string   `json:"sinkId"`
	Symbols []string `json:"symbols"`
}

type indicatorsResponse struct {
	Symbol   string             `json:"symbol"`
	Timespan model.Timespan     `json:"timespan"`
	Bars     int                `json:"bars"`
	Series   []indicator.Series `json:"series"`
}

type healthResponse struct {
	metrics.HealthSnapshot
	Stream stream.Stats       `json:"stream"`
	Market markethours.Status `json:"market"`
	TS     string             `json:"ts"`
}

func marketStatus(t time.Time) markethours.Status {
	return markethours.StatusAt(t)
}
