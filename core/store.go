package core

import (
	"errors"

	"github.com/signalsfoundry/rackplan/model"
)

// Store errors. Implementations wrap these so callers can match with
// errors.Is regardless of backend.
var (
	ErrRackExists     = errors.New("rack already exists")
	ErrRackNotFound   = errors.New("rack not found")
	ErrDeviceExists   = errors.New("device already exists")
	ErrDeviceNotFound = errors.New("device not found")
	ErrLinkExists     = errors.New("link already exists")
	ErrLinkNotFound   = errors.New("link not found")
)

// Store is the repository the engine reads plan state from and writes link
// and placement changes to. Implementations own their own locking; the engine
// holds no state between calls.
type Store interface {
	GetRack(id string) (*model.Rack, error)
	UpdateRack(rack *model.Rack) error

	GetDevice(id string) (*model.Device, error)
	ListDevices() ([]*model.Device, error)
	ListRackDevices(rackID string) ([]*model.Device, error)
	UpdateDevice(device *model.Device) error

	ListLinks() ([]*model.Link, error)
	AddLink(link *model.Link) error
	DeleteLink(id string) error
}

// Repository is a Store that also owns rack and device records. Both the
// in-memory plan and the SQLite store implement it.
type Repository interface {
	Store

	CreateRack(rack *model.Rack) error
	EnsureRack(id string) (*model.Rack, error)
	ListRacks() ([]*model.Rack, error)
	DeleteRack(id string) error

	AddDevice(device *model.Device) error
	DeleteDevice(id string) error
}
