package schema

import (
	"bytes"
	"encoding/json"
)

const (
	// DefaultVMName is the VM a container id falls back to.
	DefaultVMName = "termina"
	// DefaultContainerName is the container a container id falls back to.
	DefaultContainerName = "penguin"
)

// ContainerID identifies a VM + container pair.
type ContainerID struct {
	VMName        string `json:"vmName,omitempty"`
	ContainerName string `json:"containerName,omitempty"`
}

// DefaultContainerID returns the well-known default container.
func DefaultContainerID() ContainerID {
	return ContainerID{VMName: DefaultVMName, ContainerName: DefaultContainerName}
}

// IsZero reports whether neither field is set.
func (c ContainerID) IsZero() bool {
	return c.VMName == "" && c.ContainerName == ""
}

// Canonical fills empty fields with the defaults.
func (c ContainerID) Canonical() ContainerID {
	if c.VMName == "" {
		c.VMName = DefaultVMName
	}
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	return c
}

// IsDefault reports whether the canonical form is the default container.
func (c ContainerID) IsDefault() bool {
	return c.Canonical() == DefaultContainerID()
}

// Equal compares both fields exactly, without canonicalization.
func (c ContainerID) Equal(other ContainerID) bool {
	return c.VMName == other.VMName && c.ContainerName == other.ContainerName
}

// DisplayName returns the container name, or the VM name when unset.
func (c ContainerID) DisplayName() string {
	if c.ContainerName != "" {
		return c.ContainerName
	}
	return c.VMName
}

// CanonicalJSON serializes the canonical form with a fixed field order:
// containerName first, then vmName. Equal containers always produce equal
// bytes regardless of how the value was built.
func (c ContainerID) CanonicalJSON() string {
	canonical := c.Canonical()
	var b bytes.Buffer
	b.WriteString(`{"containerName":`)
	writeJSONString(&b, canonical.ContainerName)
	b.WriteString(`,"vmName":`)
	writeJSONString(&b, canonical.VMName)
	b.WriteByte('}')
	return b.String()
}

func writeJSONString(b *bytes.Buffer, value string) {
	encoded, err := json.Marshal(value)
	if err != nil {
		// strings always marshal
		b.WriteString(`""`)
		return
	}
	b.Write(encoded)
}
