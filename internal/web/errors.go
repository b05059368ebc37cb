package web

// errors.go maps job failures to client responses.
//
// Every error is logged with full detail server-side and returned as JSON
// with a short message, a suggested action and a code support staff can
// look up:
//
//	SED001  invalid modifier expression          400
//	SED002  external commands disabled           403
//	COL001  unknown or conflicting column        400
//	ROW001  row too short for a selected column  400
//	EXT001  external command failed              400
//	CSV001  malformed CSV input                  400
//	CSV002  unsupported input encoding           400
//	REQ001  request body too large               413
//	REQ002  bad request parameter                400
//	JOB001  too many concurrent jobs             503
//	JOB002  job cancelled                        499
//	JOB003  job timed out                        504
//	AUTH001 missing API key                      401
//	AUTH002 invalid API key                      403
//	RATE001 rate limited                         429
//	ERR000  anything else                        500
//
// Typed errors are matched with errors.As first; the remaining patterns
// are matched case-insensitively against the error text and the first
// match wins.

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvsed/internal/logging"
	"github.com/JonMunkholm/csvsed/internal/sed"
)

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
	Status  int    // HTTP status when reported before streaming
}

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// ErrExternalDisabled rejects "e" modifiers when the service does not allow
// them.
var ErrExternalDisabled = errors.New("external commands are disabled on this server")

// paramError reports an invalid query parameter.
type paramError struct {
	name, reason string
}

func (e *paramError) Error() string { return "invalid parameter " + e.name + ": " + e.reason }

var (
	msgInvalidSpec = UserMessage{"The modifier expression is invalid", "Check the s/REGEX/REPL/FLAGS, y/SRC/DST/ or e/COMMAND/ syntax", "SED001", http.StatusBadRequest}
	msgExternalOff = UserMessage{"External command modifiers are disabled", "Use an s or y expression, or ask an administrator to enable SED_ALLOW_EXTERNAL", "SED002", http.StatusForbidden}
	msgColumn      = UserMessage{"A selected column does not exist or is selected twice", "Check the columns parameter against the header row", "COL001", http.StatusBadRequest}
	msgRowWidth    = UserMessage{"A row has fewer fields than a selected column requires", "Make sure every row has the same number of fields", "ROW001", http.StatusBadRequest}
	msgExternal    = UserMessage{"The external command failed", "Run the command locally against a sample value", "EXT001", http.StatusBadRequest}
	msgCSV         = UserMessage{"The request body is not valid CSV", "Check quoting and the delimiter parameter", "CSV001", http.StatusBadRequest}
	msgEncoding    = UserMessage{"The input encoding is not supported", "Use a WHATWG encoding label such as utf-8 or latin1", "CSV002", http.StatusBadRequest}
	msgTooLarge    = UserMessage{"The request body exceeds the size limit", "Split the file into smaller chunks", "REQ001", http.StatusRequestEntityTooLarge}
	msgParam       = UserMessage{"A request parameter is invalid", "Check the query string", "REQ002", http.StatusBadRequest}
	msgBusy        = UserMessage{"The server is busy with other jobs", "Please wait a moment and try again", "JOB001", http.StatusServiceUnavailable}
	msgCancelled   = UserMessage{"The job was cancelled", "Please try again", "JOB002", 499}
	msgTimeout     = UserMessage{"The job timed out", "Try a smaller input or a simpler expression", "JOB003", http.StatusGatewayTimeout}
	msgUnknown     = UserMessage{"An unexpected error occurred", "Please try again or contact support", "ERR000", http.StatusInternalServerError}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that carry no type, mostly from wrapped
// libraries. Order matters: specific before general.
var errorPatterns = []errorPattern{
	{"encoding error", msgEncoding},
	{"invalid delimiter", msgParam},
	{"invalid output delimiter", msgParam},
	{"too many concurrent jobs", msgBusy},
	{"request body too large", msgTooLarge},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
}

// MapError returns the client-facing message for err.
func MapError(err error) UserMessage {
	if err == nil {
		return msgUnknown
	}

	var (
		specErr  *sed.InvalidSpecError
		colErr   *sed.ColumnConflictError
		widthErr *sed.RowWidthError
		extErr   *sed.ExternalCommandError
		parseErr *csv.ParseError
		sizeErr  *http.MaxBytesError
		pErr     *paramError
	)
	switch {
	case errors.As(err, &sizeErr):
		return msgTooLarge
	case errors.Is(err, ErrExternalDisabled):
		return msgExternalOff
	case errors.Is(err, ErrTooManyJobs):
		return msgBusy
	case errors.As(err, &pErr):
		return msgParam
	case errors.As(err, &specErr):
		return msgInvalidSpec
	case errors.As(err, &colErr):
		return msgColumn
	case errors.As(err, &widthErr):
		return msgRowWidth
	case errors.As(err, &extErr):
		return msgExternal
	case errors.As(err, &parseErr):
		return msgCSV
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.Is(err, context.Canceled):
		return msgCancelled
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return msgUnknown
}

// respondError logs err and writes the mapped JSON error response. It must
// only be used before any body bytes were written.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"code", msg.Code,
		"error", err.Error(),
	)

	writeJSONStatus(w, msg.Status, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSONStatus encodes v with the given status.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(context.Background()).Error("json encode error", "error", err)
	}
}
