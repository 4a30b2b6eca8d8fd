package service

import (
	"strings"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// TerminalCredentialPolicy maps a completed program name to the member role it confers.
type TerminalCredentialPolicy map[string]models.MemberRole

// DefaultTerminalCredentialPolicy grants leader for Leadership and pastor for Pastoral.
func DefaultTerminalCredentialPolicy() TerminalCredentialPolicy {
	return TerminalCredentialPolicy{
		"Leadership": models.MemberRoleLeader,
		"Pastoral":   models.MemberRolePastor,
	}
}

// NewTerminalCredentialPolicy builds a policy from configuration pairs; an empty map yields the default.
func NewTerminalCredentialPolicy(pairs map[string]string) TerminalCredentialPolicy {
	if len(pairs) == 0 {
		return DefaultTerminalCredentialPolicy()
	}
	policy := make(TerminalCredentialPolicy, len(pairs))
	for program, role := range pairs {
		policy[program] = models.MemberRole(strings.ToLower(strings.TrimSpace(role)))
	}
	return policy
}

// RoleFor returns the role conferred by completing programName.
func (p TerminalCredentialPolicy) RoleFor(programName string) (models.MemberRole, bool) {
	role, ok := p[programName]
	return role, ok && role != ""
}
