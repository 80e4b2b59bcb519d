package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/fxbridge/internal/logging"
)

// MsgDivisionByZero is reported for any division or modulo by zero.
const MsgDivisionByZero = "Division by zero"

var errDivisionByZero = errors.New(MsgDivisionByZero)

// handleEval answers {"context", "expression"} with {"result"}, {"error"}
// or {} for an empty expression.
func (s *Server) handleEval(w http.ResponseWriter, body string, log *logging.Logger) {
	if !gjson.Valid(body) {
		log.Warn("malformed eval request")
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	req := gjson.Parse(body)
	value, err := Evaluate(req.Get("expression").String(), req.Get("context").String())

	reply := "{}"
	switch {
	case err != nil:
		reply, err = sjson.Set(reply, "error", err.Error())
	case value != "":
		reply, err = sjson.Set(reply, "result", value)
	}
	if err != nil {
		log.Error("build eval reply: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, reply)
}

// Evaluate runs expression against the JSON object contextJSON and returns
// the formatted result. An empty expression or a nil result yields "".
func Evaluate(expression, contextJSON string) (string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", nil
	}

	env, err := parseEnv(contextJSON)
	if err != nil {
		return "", fmt.Errorf("invalid context: %v", err)
	}
	if env == nil {
		env = map[string]any{}
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return "", evalError(err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return "", evalError(err)
	}
	return format(out)
}

// parseEnv decodes a context object. An empty context yields nil.
func parseEnv(contextJSON string) (map[string]any, error) {
	if strings.TrimSpace(contextJSON) == "" {
		return nil, nil
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(contextJSON), &env); err != nil {
		return nil, err
	}
	return env, nil
}

// evalError keeps the first line of an expr error; the rest is a source
// snippet. Constant folding can surface division by zero at compile time.
func evalError(err error) error {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	if strings.Contains(msg, "divide by zero") {
		return errDivisionByZero
	}
	return errors.New(msg)
}

func format(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return "", errDivisionByZero
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("unsupported result %T", v)
		}
		return string(b), nil
	}
}
