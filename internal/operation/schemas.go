package operation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Inbound payload contracts, enforced before any record is touched. The
// schemas pin types and the closed sets; cross-field rules (amount against
// captured amount, entry statuses) stay in the later stages.

// paymentMethodDefinitions is shared by every schema that accepts a
// payment method, referenced locally as #/definitions/payment_method.
const paymentMethodDefinitions = `"definitions": {
    "payment_method": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"type": "string", "enum": ["card", "wallet", "bank_transfer", "bank_debit", "pay_later"]},
        "card": {
          "type": "object",
          "required": ["number", "exp_month", "exp_year"],
          "properties": {
            "number": {"type": "string", "pattern": "^[0-9]{12,19}$"},
            "exp_month": {"type": "string", "pattern": "^(0[1-9]|1[0-2])$"},
            "exp_year": {"type": "string", "pattern": "^[0-9]{4}$"},
            "cvc": {"type": "string", "pattern": "^[0-9]{3,4}$"},
            "holder_name": {"type": "string"}
          }
        },
        "wallet": {
          "type": "object",
          "required": ["provider", "token"],
          "properties": {
            "provider": {"type": "string", "minLength": 1},
            "token": {"type": "string", "minLength": 1}
          }
        },
        "bank": {
          "type": "object",
          "required": ["account_number"],
          "properties": {
            "account_number": {"type": "string", "minLength": 1},
            "routing_number": {"type": "string"},
            "iban": {"type": "string"}
          }
        }
      }
    }
  }`

const createPaymentSchema = `{
  "type": "object",
  "required": ["merchant_id", "amount", "currency", "connector"],
  "properties": {
    "merchant_id": {"type": "string", "minLength": 1},
    "amount": {"type": "integer", "minimum": 1},
    "currency": {"type": "string", "enum": ["USD", "EUR", "GBP", "INR", "JPY", "AUD", "CAD", "SGD"]},
    "connector": {"type": "string", "minLength": 1},
    "capture_method": {"type": "string", "enum": ["automatic", "manual"]},
    "customer_id": {"type": "string"},
    "description": {"type": "string"},
    "return_url": {"type": "string"},
    "payment_method": {"$ref": "#/definitions/payment_method"},
    "billing_address": {"type": "object"},
    "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
    "confirm": {"type": "boolean"}
  },
  ` + paymentMethodDefinitions + `
}`

const confirmPaymentSchema = `{
  "type": "object",
  "properties": {
    "payment_method": {"$ref": "#/definitions/payment_method"},
    "browser_info": {"type": "object"},
    "return_url": {"type": "string"}
  },
  ` + paymentMethodDefinitions + `
}`

const capturePaymentSchema = `{
  "type": "object",
  "properties": {
    "amount": {"type": "integer", "minimum": 1}
  }
}`

const cancelPaymentSchema = `{
  "type": "object",
  "properties": {
    "cancellation_reason": {"type": "string"}
  }
}`

const refundSchema = `{
  "type": "object",
  "required": ["amount"],
  "properties": {
    "amount": {"type": "integer", "minimum": 1},
    "reason": {"type": "string"}
  }
}`

const setupMandateSchema = `{
  "type": "object",
  "required": ["merchant_id", "connector", "customer_id", "payment_method"],
  "properties": {
    "merchant_id": {"type": "string", "minLength": 1},
    "connector": {"type": "string", "minLength": 1},
    "customer_id": {"type": "string", "minLength": 1},
    "payment_method": {"$ref": "#/definitions/payment_method"}
  },
  ` + paymentMethodDefinitions + `
}`

func compileSchemas() (map[Operation]*gojsonschema.Schema, error) {
	sources := map[Operation]string{
		PaymentCreate:  createPaymentSchema,
		PaymentConfirm: confirmPaymentSchema,
		PaymentCapture: capturePaymentSchema,
		PaymentCancel:  cancelPaymentSchema,
		RefundExecute:  refundSchema,
		SetupMandate:   setupMandateSchema,
	}
	schemas := make(map[Operation]*gojsonschema.Schema, len(sources))
	for op, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("operation: compiling %s schema: %w", op, err)
		}
		schemas[op] = schema
	}
	return schemas, nil
}
