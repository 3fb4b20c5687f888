package conversation

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeMalformedResponse
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeMalformedResponse:
		return "malformed_response"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one fetch. Err carries operator-facing detail and is
// never shown to the user.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

func Success(text string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Text: text}
}

func MalformedResponse(err error) Outcome {
	return Outcome{Kind: OutcomeMalformedResponse, Err: err}
}

func TransportError(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Err: err}
}

func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }
