package domain

// Driver represents a fleet operator.
//
// IsAvailable has exactly two writers: the race resolver (false on a winning
// ACCEPT) and the trip state machine (true on DELIVERED or CANCELLED). Every
// other component treats it as read-only.
type Driver struct {
	ID           string
	Name         string
	Phone        string
	IsAvailable  bool
	VehicleTypes []string
	ActiveTrips  int // derived from non-terminal trips, never stored
}

// CanOperate reports whether the driver is capable of the given vehicle type.
// An empty vehicle type matches every driver.
func (d *Driver) CanOperate(vehicleType string) bool {
	if vehicleType == "" {
		return true
	}
	for _, vt := range d.VehicleTypes {
		if vt == vehicleType {
			return true
		}
	}
	return false
}
