package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/scope/internal/route"
	"github.com/angeloszaimis/scope/internal/tap"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type TapListResponse struct {
	Taps  []tap.Info `json:"taps"`
	Count int        `json:"count"`
}

type RouteListResponse struct {
	Routes []route.Info `json:"routes"`
	Count  int          `json:"count"`
}

type ResponseListResponse struct {
	Method    string                   `json:"method"`
	Path      string                   `json:"path"`
	Responses []route.RecordedResponse `json:"responses"`
}

type CreateTapRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Label   string `json:"label,omitempty"`
}

func (r CreateTapRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.Required),
		validation.Field(&r.Port, validation.Min(0), validation.Max(65535)),
	)
}

type PinRequest struct {
	Method   string               `json:"method"`
	Path     string               `json:"path"`
	Response route.PinnedResponse `json:"response"`
}

func (r PinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Method, validation.Required),
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Response, validation.By(validatePinnedResponse)),
	)
}

type UnpinRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (r UnpinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Method, validation.Required),
		validation.Field(&r.Path, validation.Required),
	)
}

func validatePinnedResponse(value interface{}) error {
	resp, ok := value.(route.PinnedResponse)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a pinned response")
	}

	if resp.Status != 0 && (resp.Status < 100 || resp.Status > 599) {
		return validation.NewError("validation_invalid_status", "status must be between 100 and 599")
	}

	return nil
}
