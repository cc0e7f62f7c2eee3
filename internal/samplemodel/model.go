// Package samplemodel defines a small entity model (buildings, workstations,
// employees) exercising identity keys, composite keys, computed columns and
// parent/child navigation properties. The sqlgen command prints statements for
// it and package tests share it.
package samplemodel

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Building owns workstations.
type Building struct {
	BuildingID   int64  `db:"Id,pk,identity"`
	Name         string `db:"Name"`
	Description  string `db:"Description"`
	Workstations []*Workstation
}

// Workstation belongs to a building and hosts employees.
type Workstation struct {
	WorkstationID  int64  `db:"WorkstationId,pk,identity"`
	Name           string `db:"Name"`
	AccessLevel    int    `db:"AccessLevel"`
	InventoryIndex int    `db:"InventoryIndex"`
	BuildingID     *int64 `db:"BuildingId,fk=Building"`
	Building       *Building
	Employees      []*Employee
}

// Employee has a composite key, part of which the database generates, a
// computed column and an optional self reference to its manager.
type Employee struct {
	UserID            int64      `db:"UserId,pk,identity"`
	EmployeeID        uuid.UUID  `db:"EmployeeId,pk,computed"`
	KeyPass           uuid.UUID  `db:"KeyPass,computed"`
	LastName          string     `db:"LastName"`
	FirstName         string     `db:"FirstName"`
	FullName          string     `db:"FullName,computed"`
	BirthDate         time.Time  `db:"BirthDate"`
	WorkstationID     *int64     `db:"WorkstationId,fk=Workstation"`
	ManagerUserID     *int64     `db:"ManagerUserId,fk=Manager"`
	ManagerEmployeeID *uuid.UUID `db:"ManagerEmployeeId,fk=Manager"`
	Workstation       *Workstation
	Manager           *Employee
}

// LogEntry has no primary key.
type LogEntry struct {
	Message   string    `db:"Message"`
	Level     string    `db:"Level"`
	CreatedAt time.Time `db:"CreatedAt,computed"`
}

// Entities lists the sample entity types, parents before children.
func Entities() []reflect.Type {
	return []reflect.Type{
		reflect.TypeFor[Building](),
		reflect.TypeFor[Workstation](),
		reflect.TypeFor[Employee](),
		reflect.TypeFor[LogEntry](),
	}
}
