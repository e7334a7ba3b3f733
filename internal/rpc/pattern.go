package rpc

// Channel identifica el servicio downstream (una cola por canal en el broker).
type Channel string

const (
	ChannelAuth          Channel = "auth"
	ChannelUsers         Channel = "users"
	ChannelContributions Channel = "contributions"
)

// Channels devuelve todos los canales conocidos.
func Channels() []Channel {
	return []Channel{ChannelAuth, ChannelUsers, ChannelContributions}
}

// Pattern es el nombre del mensaje. Un patrón, un handler downstream.
type Pattern string

const (
	AuthGenerateTokens  Pattern = "auth.generateTokens"
	AuthByPassword      Pattern = "auth.authByPassword"
	AuthValidateAccess  Pattern = "auth.validateAccess"
	AuthValidateRefresh Pattern = "auth.validateRefresh"
	AuthRemoveToken     Pattern = "auth.removeToken"

	UsersCreate             Pattern = "users.create"
	UsersGetByEmail         Pattern = "users.getByEmail"
	UsersGetAll             Pattern = "users.getAll"
	UsersGetByID            Pattern = "users.getUserById"
	UsersUpdate             Pattern = "users.update"
	UsersRemove             Pattern = "users.remove"
	UsersAddContribution    Pattern = "users.addContribution"
	UsersRemoveContribution Pattern = "users.removeContribution"

	ContributionsCreate  Pattern = "contributions.create"
	ContributionsGetAll  Pattern = "contributions.getAll"
	ContributionsGetByID Pattern = "contributions.getById"
	ContributionsUpdate  Pattern = "contributions.update"
	ContributionsRemove  Pattern = "contributions.remove"
)

// Channel resuelve el canal dueño del patrón. Tabla estática: agregar un patrón
// sin caso acá hace que ok sea false y el cliente lo rechace antes de enviar.
func (p Pattern) Channel() (Channel, bool) {
	switch p {
	case AuthGenerateTokens, AuthByPassword, AuthValidateAccess, AuthValidateRefresh, AuthRemoveToken:
		return ChannelAuth, true
	case UsersCreate, UsersGetByEmail, UsersGetAll, UsersGetByID, UsersUpdate, UsersRemove,
		UsersAddContribution, UsersRemoveContribution:
		return ChannelUsers, true
	case ContributionsCreate, ContributionsGetAll, ContributionsGetByID, ContributionsUpdate, ContributionsRemove:
		return ChannelContributions, true
	}
	return "", false
}

// Patterns devuelve los patrones de un canal (todos si ch == "").
func Patterns(ch Channel) []Pattern {
	all := []Pattern{
		AuthGenerateTokens, AuthByPassword, AuthValidateAccess, AuthValidateRefresh, AuthRemoveToken,
		UsersCreate, UsersGetByEmail, UsersGetAll, UsersGetByID, UsersUpdate, UsersRemove,
		UsersAddContribution, UsersRemoveContribution,
		ContributionsCreate, ContributionsGetAll, ContributionsGetByID, ContributionsUpdate, ContributionsRemove,
	}
	if ch == "" {
		return all
	}
	out := make([]Pattern, 0, len(all))
	for _, p := range all {
		if c, _ := p.Channel(); c == ch {
			out = append(out, p)
		}
	}
	return out
}
