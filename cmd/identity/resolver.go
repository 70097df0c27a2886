package identity

import "context"

// ParticipantView is the display framing of a conversation participant.
// Experts are shown by their marketplace profile; regular users by username.
type ParticipantView struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Resolver turns account IDs into ParticipantViews.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the display framing for one account.
//
// An expert without a profile yet falls back to the username, so a
// half-finished registration never breaks conversation listings.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (ParticipantView, error) {
	acc, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return ParticipantView{}, err
	}

	view := ParticipantView{
		ID:        acc.ID,
		Role:      acc.Role,
		Name:      acc.Username,
		AvatarURL: acc.AvatarURL,
	}

	if acc.Role == RoleExpert {
		profile, err := r.store.GetExpertProfile(ctx, accountID)
		if err == nil {
			if profile.FullName != "" {
				view.Name = profile.FullName
			}
			if profile.ImageURL != nil {
				view.AvatarURL = profile.ImageURL
			}
		} else if !IsNotFound(err) {
			return ParticipantView{}, err
		}
	}

	return view, nil
}

// ResolveMany resolves a batch, preserving input order. Missing accounts are
// skipped rather than failing the whole batch.
func (r *Resolver) ResolveMany(ctx context.Context, accountIDs []string) ([]ParticipantView, error) {
	out := make([]ParticipantView, 0, len(accountIDs))
	for _, id := range accountIDs {
		view, err := r.Resolve(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}
