package pharmacy

import "github.com/StricklySoft/clinic-hub/pkg/auth"

// Operations guarded by the gate.
const (
	OpMedicinesList       = "medicines.list"
	OpMedicinesGet        = "medicines.get"
	OpMedicinesCreate     = "medicines.create"
	OpMedicinesUpdate     = "medicines.update"
	OpMedicinesDelete     = "medicines.delete"
	OpDistributionsList   = "distributions.list"
	OpDistributionsCreate = "distributions.create"
	OpStaffVerify         = "staff.verify"
)

// Client roles on PHARMACY_CLIENT_ID.
const (
	RoleReadMedicines       = "read_medicines"
	RoleManageMedicines     = "manage_medicines"
	RoleDistributeMedicines = "distribute_medicines"
)

// Policy returns the operation table for clientID.
func Policy(clientID string) auth.Policy {
	read := auth.ClientRole(clientID, RoleReadMedicines)
	manage := auth.ClientRole(clientID, RoleManageMedicines)
	return auth.Policy{
		OpMedicinesList:       read,
		OpMedicinesGet:        read,
		OpMedicinesCreate:     manage,
		OpMedicinesUpdate:     manage,
		OpMedicinesDelete:     manage,
		OpDistributionsList:   read,
		OpDistributionsCreate: auth.ClientRole(clientID, RoleDistributeMedicines),
		OpStaffVerify:         auth.Authenticated,
	}
}
