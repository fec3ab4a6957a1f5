package db

import (
	"time"

	"gorm.io/gorm"
)

// InstalledMod is the mod version currently installed in the mods directory
type InstalledMod struct {
	gorm.Model
	ModID       string `gorm:"uniqueIndex"` // Catalog mod id string (unique identifier)
	Version     string // Installed mod version
	FileName    string // Catalog file name
	InstallPath string // Path where the mod is currently installed
	Tag         string // Effective game version tag at install time
	Mismatch    bool   // Installed although the release does not list Tag
	InstalledAt time.Time
}

// ModVersion is one entry of a mod's install history
type ModVersion struct {
	gorm.Model
	ModID       string `gorm:"index"` // References InstalledMod.ModID
	Version     string
	InstallPath string
	Tag         string
}
