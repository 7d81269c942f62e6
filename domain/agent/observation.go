package agent

import (
	"encoding/json"
	"fmt"
)

// Observation is the outcome of one dispatch, fed back to the model.
// Every dispatch produces exactly one, including failed ones.
type Observation struct {
	Success  bool `json:"success"`
	Response any  `json:"response"`
}

// Succeeded creates a successful observation.
func Succeeded(response any) Observation {
	return Observation{Success: true, Response: response}
}

// Failed creates a failed observation carrying a message.
func Failed(message string) Observation {
	return Observation{Success: false, Response: message}
}

// FailedErr creates a failed observation from an error.
func FailedErr(err error) Observation {
	if err == nil {
		return Failed("unknown error")
	}
	return Failed(err.Error())
}

// ResponseText renders the response as text. Structured values are
// rendered as JSON.
func (o Observation) ResponseText() string {
	switch v := o.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Text renders the observation in the wire format appended to the history.
func (o Observation) Text() string {
	return fmt.Sprintf("## Observation\nStatus: %s\nResponse: %s", statusText(o.Success), o.ResponseText())
}

func statusText(ok bool) string {
	if ok {
		return "True"
	}
	return "False"
}
