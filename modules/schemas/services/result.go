package services

import (
	"fmt"
)

type ResultStatus string

const (
	ResultOK            ResultStatus = "ok"
	ResultDenied        ResultStatus = "denied"
	ResultInvalid       ResultStatus = "invalid"
	ResultConflict      ResultStatus = "conflict"
	ResultNotFound      ResultStatus = "not_found"
	ResultUpstreamError ResultStatus = "upstream_error"
)

const (
	MsgSuccess             = "success"
	MsgNotAuthorized       = "Not Authorized"
	MsgInvalidJSON         = "Failure. Invalid json"
	MsgTopicNotOwned       = "No topic selected Or Not authorized to register schema for this topic."
	MsgRequestExists       = "Failure. A request already exists for this topic."
	MsgSelfApproval        = "You are not allowed to approve your own schema requests."
	MsgSourceRegistry      = "Unable to find or access the source Schema Registry"
	MsgVersionNotFound     = "Failure. Schema version not found."
	MsgRequestGone         = "This request does not exist anymore"
	MsgRequestNotFound     = "Failure. Request does not exist."
	msgUploadFailurePrefix = "Failure in uploading schema. Error : "
	msgValidateFailPrefix  = "Failure in validating schema. Error : "
	msgVersionsFailPrefix  = "Failure in fetching schema versions. Error : "
)

// Result is the business outcome of an engine operation. Internal failures are returned as errors instead.
type Result struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
	Payload any          `json:"payload,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == ResultOK
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %s", r.Status, r.Message)
}

func ok(payload any) Result {
	return Result{Status: ResultOK, Message: MsgSuccess, Payload: payload}
}

func denied() Result {
	return Result{Status: ResultDenied, Message: MsgNotAuthorized}
}

func invalid(msg string) Result {
	return Result{Status: ResultInvalid, Message: msg}
}

func conflict(msg string) Result {
	return Result{Status: ResultConflict, Message: msg}
}

func notFound() Result {
	return Result{Status: ResultNotFound, Message: MsgRequestNotFound}
}

func upstream(prefix, detail string) Result {
	return Result{Status: ResultUpstreamError, Message: prefix + truncateUpstream(detail)}
}

// truncateUpstream keeps registry error text under 100 characters: 98 characters and an ellipsis.
func truncateUpstream(s string) string {
	r := []rune(s)
	if len(r) > 100 {
		return string(r[:98]) + "..."
	}
	return s
}
