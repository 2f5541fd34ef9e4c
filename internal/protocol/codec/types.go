package codec

import (
	"encoding/xml"
	"strconv"
	"time"
)

const (
	NamespaceEPP = "urn:ietf:params:xml:ns:epp-1.0"

	ProtocolVersion = "1.0"
	DefaultLang     = "en"
)

// Component is any namespaced payload the registry can carry: an
// object-mapping command or response body, or an extension element.
// Concrete components are structs whose XMLName tag names their namespace.
type Component interface {
	Namespace() string
}

// Verb is the element name directly under <command>.
type Verb string

const (
	VerbCheck    Verb = "check"
	VerbInfo     Verb = "info"
	VerbCreate   Verb = "create"
	VerbUpdate   Verb = "update"
	VerbDelete   Verb = "delete"
	VerbTransfer Verb = "transfer"
	VerbRenew    Verb = "renew"
	VerbLogin    Verb = "login"
	VerbLogout   Verb = "logout"
	VerbPoll     Verb = "poll"
)

// Core verbs are defined by the EPP namespace itself rather than a mapping.
func (v Verb) Core() bool {
	switch v {
	case VerbLogin, VerbLogout, VerbPoll:
		return true
	}
	return false
}

func (v Verb) Valid() bool {
	switch v {
	case VerbCheck, VerbInfo, VerbCreate, VerbUpdate, VerbDelete, VerbTransfer, VerbRenew:
		return true
	}
	return v.Core()
}

// Transfer operations, carried in the op attribute of <transfer>.
const (
	TransferRequest = "request"
	TransferApprove = "approve"
	TransferReject  = "reject"
	TransferCancel  = "cancel"
	TransferQuery   = "query"
)

// Command is one client request.
type Command struct {
	Verb Verb
	// Op is the transfer operation; empty for every other verb.
	Op string
	// Payload is the object-mapping element, or *Login, *Logout, *Poll for core verbs.
	Payload    Component
	Extensions []Component
	ClientTRID string
}

// Namespace is the object-mapping namespace the command belongs to.
func (c *Command) Namespace() string {
	if c == nil || c.Payload == nil {
		return ""
	}
	return c.Payload.Namespace()
}

// ResultCode is a four digit EPP result code (RFC 5730 §3).
type ResultCode int

const (
	CodeOK                      ResultCode = 1000
	CodeOKPending               ResultCode = 1001
	CodeOKNoMessages            ResultCode = 1300
	CodeOKAckToDequeue          ResultCode = 1301
	CodeOKEndingSession         ResultCode = 1500
	CodeUnknownCommand          ResultCode = 2000
	CodeSyntaxError             ResultCode = 2001
	CodeUseError                ResultCode = 2002
	CodeMissingParameter        ResultCode = 2003
	CodeParameterRange          ResultCode = 2004
	CodeParameterSyntax         ResultCode = 2005
	CodeUnimplementedVersion    ResultCode = 2100
	CodeUnimplementedCommand    ResultCode = 2101
	CodeUnimplementedOption     ResultCode = 2102
	CodeUnimplementedExtension  ResultCode = 2103
	CodeBillingFailure          ResultCode = 2104
	CodeNotEligibleRenew        ResultCode = 2105
	CodeNotEligibleTransfer     ResultCode = 2106
	CodeAuthenticationError     ResultCode = 2200
	CodeAuthorizationError      ResultCode = 2201
	CodeInvalidAuthInfo         ResultCode = 2202
	CodePendingTransfer         ResultCode = 2300
	CodeNotPendingTransfer      ResultCode = 2301
	CodeObjectExists            ResultCode = 2302
	CodeObjectDoesNotExist      ResultCode = 2303
	CodeStatusProhibits         ResultCode = 2304
	CodeAssociationProhibits    ResultCode = 2305
	CodeParameterPolicy         ResultCode = 2306
	CodeUnimplementedService    ResultCode = 2307
	CodeDataManagementViolation ResultCode = 2308
	CodeCommandFailed           ResultCode = 2400
	CodeCommandFailedClosing    ResultCode = 2500
	CodeAuthErrorClosing        ResultCode = 2501
	CodeSessionLimitExceeded    ResultCode = 2502
)

var codeMessages = map[ResultCode]string{
	CodeOK:                      "Command completed successfully",
	CodeOKPending:               "Command completed successfully; action pending",
	CodeOKNoMessages:            "Command completed successfully; no messages",
	CodeOKAckToDequeue:          "Command completed successfully; ack to dequeue",
	CodeOKEndingSession:         "Command completed successfully; ending session",
	CodeUnknownCommand:          "Unknown command",
	CodeSyntaxError:             "Command syntax error",
	CodeUseError:                "Command use error",
	CodeMissingParameter:        "Required parameter missing",
	CodeParameterRange:          "Parameter value range error",
	CodeParameterSyntax:         "Parameter value syntax error",
	CodeUnimplementedVersion:    "Unimplemented protocol version",
	CodeUnimplementedCommand:    "Unimplemented command",
	CodeUnimplementedOption:     "Unimplemented option",
	CodeUnimplementedExtension:  "Unimplemented extension",
	CodeBillingFailure:          "Billing failure",
	CodeNotEligibleRenew:        "Object is not eligible for renewal",
	CodeNotEligibleTransfer:     "Object is not eligible for transfer",
	CodeAuthenticationError:     "Authentication error",
	CodeAuthorizationError:      "Authorization error",
	CodeInvalidAuthInfo:         "Invalid authorization information",
	CodePendingTransfer:         "Object pending transfer",
	CodeNotPendingTransfer:      "Object not pending transfer",
	CodeObjectExists:            "Object exists",
	CodeObjectDoesNotExist:      "Object does not exist",
	CodeStatusProhibits:         "Object status prohibits operation",
	CodeAssociationProhibits:    "Object association prohibits operation",
	CodeParameterPolicy:         "Parameter value policy error",
	CodeUnimplementedService:    "Unimplemented object service",
	CodeDataManagementViolation: "Data management policy violation",
	CodeCommandFailed:           "Command failed",
	CodeCommandFailedClosing:    "Command failed; server closing connection",
	CodeAuthErrorClosing:        "Authentication error; server closing connection",
	CodeSessionLimitExceeded:    "Session limit exceeded; server closing connection",
}

// Success reports whether code is in the 1xxx completed-successfully band.
func (c ResultCode) Success() bool {
	return c >= 1000 && c < 2000
}

// ClosesSession reports the 25xx band, after which the server drops the connection.
func (c ResultCode) ClosesSession() bool {
	return c >= 2500 && c < 2600
}

func (c ResultCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Result " + strconv.Itoa(int(c))
}

// ExtValue is a diagnostic attached to a result: the offending element and why.
type ExtValue struct {
	// Value is the raw XML of the offending element.
	Value  string
	Reason string
}

type Result struct {
	Code      ResultCode
	Msg       string
	Lang      string
	Values    []string
	ExtValues []ExtValue
}

// NewResult builds a result carrying the standard message for code.
func NewResult(code ResultCode) Result {
	return Result{Code: code, Msg: code.Message()}
}

type TrID struct {
	ClientTRID string
	ServerTRID string
}

// MsgQ describes the registrar's poll queue on a response.
type MsgQ struct {
	Count int
	ID    string
	QDate *time.Time
	Msg   string
	Lang  string
}

// Response is one server reply. Results[0] is the primary result.
type Response struct {
	Results    []Result
	MsgQ       *MsgQ
	Data       Component
	Extensions []Component
	TrID       TrID
}

// NewResponse builds a single-result response echoing clTRID.
func NewResponse(code ResultCode, clTRID, svTRID string) *Response {
	return &Response{
		Results: []Result{NewResult(code)},
		TrID:    TrID{ClientTRID: clTRID, ServerTRID: svTRID},
	}
}

func (r *Response) Primary() Result {
	if r == nil || len(r.Results) == 0 {
		return Result{}
	}
	return r.Results[0]
}

func (r *Response) Code() ResultCode {
	return r.Primary().Code
}

func (r *Response) Success() bool {
	return r.Primary().Code.Success()
}

// Greeting is the server capability advertisement sent on connect and in
// reply to <hello/>.
type Greeting struct {
	XMLName    xml.Name    `xml:"greeting"`
	ServerID   string      `xml:"svID"`
	ServerDate time.Time   `xml:"svDate"`
	Menu       ServiceMenu `xml:"svcMenu"`
	DCP        *DCP        `xml:"dcp,omitempty"`
}

func (g *Greeting) Namespace() string { return NamespaceEPP }

type ServiceMenu struct {
	Versions  []string          `xml:"version"`
	Langs     []string          `xml:"lang"`
	ObjURIs   []string          `xml:"objURI"`
	Extension *ServiceExtension `xml:"svcExtension,omitempty"`
}

// ServiceExtension lists extension URIs; nil when there are none so the
// element is omitted.
type ServiceExtension struct {
	ExtURIs []string `xml:"extURI"`
}

// NewServiceExtension returns nil for an empty list.
func NewServiceExtension(uris []string) *ServiceExtension {
	if len(uris) == 0 {
		return nil
	}
	return &ServiceExtension{ExtURIs: append([]string(nil), uris...)}
}

func (x *ServiceExtension) URIs() []string {
	if x == nil {
		return nil
	}
	return x.ExtURIs
}

// SupportsObject reports whether uri is advertised as an object service.
func (m ServiceMenu) SupportsObject(uri string) bool {
	return contains(m.ObjURIs, uri)
}

func (m ServiceMenu) SupportsExtension(uri string) bool {
	return contains(m.Extension.URIs(), uri)
}

func (m ServiceMenu) SupportsVersion(v string) bool {
	return contains(m.Versions, v)
}

func (m ServiceMenu) SupportsLang(l string) bool {
	return contains(m.Langs, l)
}

// DCP is the data collection policy, kept verbatim.
type DCP struct {
	Inner string `xml:",innerxml"`
}

// DefaultDCP grants access to all data for provisioning and admin purposes.
func DefaultDCP() *DCP {
	return &DCP{Inner: "<access><all/></access>" +
		"<statement><purpose><admin/><prov/></purpose>" +
		"<recipient><ours/><public/></recipient>" +
		"<retention><stated/></retention></statement>"}
}

// Hello asks the server for a fresh greeting; it doubles as keep-alive.
type Hello struct {
	XMLName xml.Name `xml:"hello"`
}

func (h *Hello) Namespace() string { return NamespaceEPP }

type Login struct {
	XMLName     xml.Name     `xml:"login"`
	ClientID    string       `xml:"clID"`
	Password    string       `xml:"pw"`
	NewPassword string       `xml:"newPW,omitempty"`
	Options     LoginOptions `xml:"options"`
	Services    Services     `xml:"svcs"`
}

func (l *Login) Namespace() string { return NamespaceEPP }

type LoginOptions struct {
	Version string `xml:"version"`
	Lang    string `xml:"lang"`
}

type Services struct {
	ObjURIs   []string          `xml:"objURI"`
	Extension *ServiceExtension `xml:"svcExtension,omitempty"`
}

type Logout struct {
	XMLName xml.Name `xml:"logout"`
}

func (l *Logout) Namespace() string { return NamespaceEPP }

type PollOp string

const (
	PollRequest PollOp = "req"
	PollAck     PollOp = "ack"
)

type Poll struct {
	XMLName   xml.Name `xml:"poll"`
	Op        PollOp   `xml:"op,attr"`
	MessageID string   `xml:"msgID,attr,omitempty"`
}

func (p *Poll) Namespace() string { return NamespaceEPP }

// Raw is a pre-encoded resData element replayed verbatim, used for queued
// poll payloads.
type Raw struct {
	NS   string
	Data []byte
}

func (r Raw) Namespace() string { return r.NS }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
