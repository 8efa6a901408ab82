package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

type Deal struct {
  gorm.Model
  ID              uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  DealID          string            `gorm:"column:deal_id;uniqueIndex;not null" json:"deal_id"`
  Name            string            `gorm:"column:name;not null" json:"name"`
  Sponsor         string            `gorm:"column:sponsor" json:"sponsor,omitempty"`
  DocumentPath    string            `gorm:"column:document_path" json:"document_path,omitempty"`
  Status          string            `gorm:"column:status;not null;default:'pending'" json:"status"`
  Metadata        datatypes.JSON    `gorm:"type:jsonb;column:metadata" json:"metadata"`
  CreatedAt       time.Time         `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt       time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (Deal) TableName() string {
  return "deal"
}
