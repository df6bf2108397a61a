package funcs

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Argument keys of the assistant's tool contract.
const (
	argServicio      = "servicio"
	argFechaHora     = "fechaHora"
	argNuevaFecha    = "nuevaFechaHora"
	argNombre        = "nombre"
	argEmail         = "email"
	argTelefono      = "telefono"
	argAsunto        = "asunto"
	argModalidad     = "modalidad"
	argCitaID        = "citaId"
	argMotivo        = "motivo"
	argOferta        = "oferta"
	argConcepto      = "concepto"
	argMontoCentavos = "montoCentavos"
)

// stringArg returns the trimmed string value of a key, or "" when absent or
// not a string.
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// uuidArg parses a key as a UUID, returning uuid.Nil when absent or invalid.
func uuidArg(args map[string]any, key string) uuid.UUID {
	s := stringArg(args, key)
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// int64Arg parses a key as an integer. JSON numbers arrive as float64;
// string digits are tolerated because the upstream model is inconsistent.
func int64Arg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
