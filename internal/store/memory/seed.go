package memory

import "github.com/itam-hq/be-procurement/internal/repository"

// SeedDev loads the default roles and a handful of users so a DB-less
// development run has a working approval chain out of the box.
func SeedDev(identity *IdentityStore) {
	identity.AddRole("department_manager", repository.PermApproveTeam)
	identity.AddRole("it_consultant", repository.PermConsultIT)
	identity.AddRole("finance_reviewer", repository.PermReviewFinance)
	identity.AddRole("director", repository.PermApproveDirector)
	identity.AddRole("purchasing", repository.PermExecutePurchase)
	identity.AddRole("accounting", repository.PermExecuteAccounting)
	identity.AddRole("warehouse", repository.PermConfirmDelivery)

	identity.AddUser(repository.User{ID: "admin", FullName: "Local Admin", DepartmentID: "it", IsAdmin: true})
	identity.AddUser(repository.User{ID: "manager", FullName: "Dev Manager", DepartmentID: "dev", IsManager: true})
	identity.AddUser(repository.User{ID: "alice", FullName: "Alice Dev", DepartmentID: "dev"})

	identity.AddUser(repository.User{ID: "itc", FullName: "IT Consultant", DepartmentID: "it"})
	identity.AssignRole("itc", "it_consultant")
	identity.AddUser(repository.User{ID: "fin", FullName: "Finance Reviewer", DepartmentID: "finance"})
	identity.AssignRole("fin", "finance_reviewer")
	identity.AddUser(repository.User{ID: "dir", FullName: "Director", DepartmentID: "board"})
	identity.AssignRole("dir", "director")
	identity.AddUser(repository.User{ID: "buyer", FullName: "Purchasing", DepartmentID: "procurement"})
	identity.AssignRole("buyer", "purchasing")
	identity.AddUser(repository.User{ID: "acct", FullName: "Accounting", DepartmentID: "finance"})
	identity.AssignRole("acct", "accounting")
	identity.AddUser(repository.User{ID: "wh", FullName: "Warehouse", DepartmentID: "logistics"})
	identity.AssignRole("wh", "warehouse")
}
