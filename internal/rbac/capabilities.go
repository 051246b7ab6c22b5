package rbac

import "github.com/chambers-pm/chambers/internal/access"

// Capability maps permission domains onto a navigable section of the product.
// A role reaches the section when it holds any permission in one of Domains.
type Capability struct {
	Route       string
	SidebarItem string
	Domains     []string
	Always      bool
}

// DefaultCapabilities returns the firm's route and sidebar table.
func DefaultCapabilities() []Capability {
	return []Capability{
		{Route: access.DefaultRoute, SidebarItem: access.DefaultSidebarItem, Always: true},
		{Route: "/matter", SidebarItem: "Matters", Domains: []string{"mm"}},
		{Route: "/timesheet", SidebarItem: "Timesheets", Domains: []string{"ts"}},
		// Leave is booked against recorded time, so timekeepers see it too.
		{Route: "/leave", SidebarItem: "Leave", Domains: []string{"lv", "ts"}},
		{Route: "/crm", SidebarItem: "Clients", Domains: []string{"crm"}},
		{Route: "/invoice", SidebarItem: "Invoices", Domains: []string{"inv"}},
		{Route: "/hr", SidebarItem: "HR", Domains: []string{"hr"}},
		{Route: "/admin/users", SidebarItem: "Users", Domains: []string{"usr"}},
		{Route: "/admin/roles", SidebarItem: "Roles & Permissions", Domains: []string{"rbac"}},
		{Route: "/admin/audit", SidebarItem: "Audit Trail", Domains: []string{"aud"}},
		{Route: "/integrations/azure", SidebarItem: "Azure", Domains: []string{"az"}},
	}
}
