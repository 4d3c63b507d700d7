package firmware

import (
	"fmt"

	"github.com/cuemby/ecowatt/pkg/storage"
)

// Applier commits a verified image to durable storage so the bootloader
// picks it up on the next restart.
type Applier interface {
	Apply(version string, image []byte) error
	ActiveVersion() (string, error)
	Rollback() error
}

// SlotApplier implements the A/B slot model: exactly one of "a"/"b" is
// active at a time; applying an image writes it to the inactive slot and
// flips the active marker, so a failed post-boot health check can flip it
// straight back without re-downloading anything.
type SlotApplier struct {
	Store storage.Store
}

const (
	keyActiveSlot = "active-slot"
	slotA         = "a"
	slotB         = "b"
	defaultSlot   = slotA
)

func (a *SlotApplier) inactiveSlot() (string, error) {
	active, err := a.Store.GetString(storage.NamespaceFirmware, keyActiveSlot, defaultSlot)
	if err != nil {
		return "", err
	}
	if active == slotA {
		return slotB, nil
	}
	return slotA, nil
}

// Apply writes image and version into the inactive slot and flips the
// active marker to it.
func (a *SlotApplier) Apply(version string, image []byte) error {
	target, err := a.inactiveSlot()
	if err != nil {
		return fmt.Errorf("firmware: determine inactive slot: %w", err)
	}
	if err := a.Store.PutString(storage.NamespaceFirmware, "slot-"+target+"-version", version); err != nil {
		return fmt.Errorf("firmware: persist slot version: %w", err)
	}
	if err := a.Store.PutUint64(storage.NamespaceFirmware, "slot-"+target+"-size", uint64(len(image))); err != nil {
		return fmt.Errorf("firmware: persist slot size: %w", err)
	}
	if err := a.Store.PutString(storage.NamespaceFirmware, keyActiveSlot, target); err != nil {
		return fmt.Errorf("firmware: flip active slot: %w", err)
	}
	return nil
}

// ActiveVersion returns the version string of the currently active slot.
func (a *SlotApplier) ActiveVersion() (string, error) {
	active, err := a.Store.GetString(storage.NamespaceFirmware, keyActiveSlot, defaultSlot)
	if err != nil {
		return "", err
	}
	return a.Store.GetString(storage.NamespaceFirmware, "slot-"+active+"-version", "")
}

// Rollback flips the active marker back to the other slot — used when a
// post-boot diagnostic fails on the freshly applied image.
func (a *SlotApplier) Rollback() error {
	active, err := a.Store.GetString(storage.NamespaceFirmware, keyActiveSlot, defaultSlot)
	if err != nil {
		return err
	}
	previous := slotA
	if active == slotA {
		previous = slotB
	}
	return a.Store.PutString(storage.NamespaceFirmware, keyActiveSlot, previous)
}
