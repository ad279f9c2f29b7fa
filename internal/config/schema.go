package config

// documentSchema is the JSON Schema the configuration document must satisfy
// before it is unmarshalled into Config. It checks shape and enums only;
// cross-field rules (timeout clamping, required-per-variant credentials) are
// enforced in Load after unmarshalling.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["messenger", "store", "rules"],
  "properties": {
    "messenger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["slack", "telegram", "twilio"]},
        "slack": {"type": "object"},
        "telegram": {"type": "object"},
        "twilio": {"type": "object"}
      }
    },
    "store": {
      "type": "object",
      "required": ["url", "anonKey"],
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "anonKey": {"type": "string", "minLength": 1}
      }
    },
    "rules": {
      "type": "object",
      "properties": {
        "timeoutSeconds": {"type": "integer"},
        "defaultAction": {"type": "string", "enum": ["allow", "deny"]},
        "customPatterns": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["pattern", "severity", "reason"],
            "properties": {
              "pattern": {"type": "string"},
              "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
              "reason": {"type": "string"}
            }
          }
        },
        "whitelist": {
          "type": "array",
          "items": {"type": "string"}
        }
      }
    },
    "machineIdSecret": {"type": "string"}
  }
}`
