package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

type ExtractionRun struct {
  gorm.Model
  ID                  uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  DealID              string            `gorm:"column:deal_id;not null;index" json:"deal_id"`
  ProvisionType       string            `gorm:"column:provision_type;not null" json:"provision_type"`
  AnchorKey           string            `gorm:"column:anchor_key;not null;index" json:"anchor_key"`
  State               string            `gorm:"column:state;not null" json:"state"`
  SchemaVersion       string            `gorm:"column:schema_version" json:"schema_version"`
  ScalarWrites        int               `gorm:"column:scalar_writes;not null;default:0" json:"scalar_writes"`
  MultiselectWrites   int               `gorm:"column:multiselect_writes;not null;default:0" json:"multiselect_writes"`
  EntityWrites        int               `gorm:"column:entity_writes;not null;default:0" json:"entity_writes"`
  ValidationErrors    datatypes.JSON    `gorm:"type:jsonb;column:validation_errors" json:"validation_errors"`
  WriteErrors         datatypes.JSON    `gorm:"type:jsonb;column:write_errors" json:"write_errors"`
  Flags               datatypes.JSON    `gorm:"type:jsonb;column:flags" json:"flags"`
  StartedAt           time.Time         `gorm:"column:started_at;not null;default:now()" json:"started_at"`
  FinishedAt          *time.Time        `gorm:"column:finished_at" json:"finished_at,omitempty"`
  CreatedAt           time.Time         `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt           time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (ExtractionRun) TableName() string {
  return "extraction_run"
}
