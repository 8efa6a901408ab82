package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

type ModelCallLog struct {
  ID                  uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  RunID               *uuid.UUID        `gorm:"type:uuid;index" json:"run_id,omitempty"`
  AnchorKey           string            `gorm:"column:anchor_key;index" json:"anchor_key"`
  CallType            string            `gorm:"column:call_type;not null" json:"call_type"`
  Model               string            `gorm:"column:model;not null" json:"model"`
  Prompt              string            `gorm:"column:prompt" json:"prompt"`
  Response            string            `gorm:"column:response" json:"response"`
  Success             bool              `gorm:"column:success;not null" json:"success"`
  Error               string            `gorm:"column:error" json:"error"`
  Usage               datatypes.JSON    `gorm:"type:jsonb;column:usage" json:"usage"`
  CostUSD             float64           `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
  CreatedAt           time.Time         `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt           time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (ModelCallLog) TableName() string {
  return "model_call_log"
}
