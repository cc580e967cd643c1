package state

import "path/filepath"

type Paths struct {
	DB          string
	Store       string
	State       string
	Audit       string
	Maintenance string
	Tel         string
	Crash       string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:       statePath,
		Audit:       filepath.Join(statePath, "audit"),
		Maintenance: filepath.Join(statePath, "maintenance"),
		Tel:         filepath.Join(statePath, "telemetry"),
		Crash:       filepath.Join(statePath, "crash"),
	}
}

func (p Paths) all() []string {
	return []string{p.Store, p.Audit, p.Maintenance, p.Tel, p.Crash}
}
