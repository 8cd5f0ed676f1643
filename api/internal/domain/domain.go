package domain

import (
	"errors"
	"io"
)

const (
	CodeSuccess = 0
	CodeError   = -1
)

// TimeLayout is used for createTime and accepted for startDate/endDate.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

const AllData = "all data"

// MaxDataLimit bounds one raw data query.
const MaxDataLimit = 10000

type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type SubmitRequest struct {
	DataComeFrom string `json:"dataComeFrom"`
	AllData      bool   `json:"allData"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
}

type TaskSummary struct {
	TaskID        string  `json:"taskId"`
	Kind          string  `json:"kind"`
	TaskName      string  `json:"taskName"`
	DataComeFrom  string  `json:"dataComeFrom"`
	RequestParams string  `json:"requestParams"`
	CreateTime    string  `json:"createTime"`
	TaskStatus    string  `json:"taskStatus"`
	Comment       *string `json:"comment"`
}

// DataQuery selects raw telemetry: at most DataLimit rows of NeedParams from
// StartDate onwards.
type DataQuery struct {
	DataComeFrom string
	StartDate    string
	DataLimit    int
	NeedParams   []string
}

type SourceInfo struct {
	Label   string   `json:"label"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

type Export struct {
	FileName string
	Size     int64
	Content  io.ReadCloser
}

var (
	ErrNoResult     = errors.New("no result available")
	ErrNoData       = errors.New("no data found")
	ErrDataDisabled = errors.New("raw data query is not configured")
	ErrInvalidQuery = errors.New("invalid query")
	ErrInvalidDate  = errors.New("invalid date")
	ErrUnauthorized = errors.New("unauthorized")
)
