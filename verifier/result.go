package verifier

import "fmt"

// Result is the outcome of a block check. Codes which refer to one of the
// announcements carry its index in the low byte.
type Result uint32

const (
	ResultOK                Result = 0
	ResultShareOK           Result = 1 << 8
	ResultAnnInvalid        Result = 2 << 8
	ResultAnnInsufPow       Result = 3 << 8
	ResultAnnSigInvalid     Result = 4 << 8
	ResultAnnContentInvalid Result = 5 << 8
	ResultPcpInvalid        Result = 6 << 8
	ResultPcpMismatch       Result = 7 << 8
	ResultInsufficientPow   Result = 8 << 8
	ResultBadCoinbase       Result = 9 << 8
)

func annResult(code Result, i int) Result { return code | Result(i&0xff) }

// Code strips the announcement index.
func (r Result) Code() Result { return r &^ 0xff }

// Index returns the announcement a per-announcement result refers to.
func (r Result) Index() int { return int(r & 0xff) }

func (r Result) String() string {
	name := r.name()
	switch {
	case name == "" || (!r.perAnn() && r.Index() != 0):
		return fmt.Sprintf("UNKNOWN_ERROR(%d)", uint32(r))
	case r.perAnn():
		return fmt.Sprintf("%s(%d)", name, r.Index())
	}
	return name
}

func (r Result) perAnn() bool {
	return r.Code() >= ResultAnnInvalid && r.Code() <= ResultAnnContentInvalid
}

// name returns the result name without the announcement index.
func (r Result) name() string {
	switch r.Code() {
	case ResultOK:
		return "OK"
	case ResultShareOK:
		return "SHARE_OK"
	case ResultAnnInvalid:
		return "ANN_INVALID"
	case ResultAnnInsufPow:
		return "ANN_INSUF_POW"
	case ResultAnnSigInvalid:
		return "ANN_SIG_INVALID"
	case ResultAnnContentInvalid:
		return "ANN_CONTENT_INVALID"
	case ResultPcpInvalid:
		return "PCP_INVAL"
	case ResultPcpMismatch:
		return "PCP_MISMATCH"
	case ResultInsufficientPow:
		return "INSUF_POW"
	case ResultBadCoinbase:
		return "BAD_COINBASE"
	}
	return ""
}
