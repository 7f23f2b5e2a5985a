package library

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ------------------ Authentication ------------------

// Login checks an email and password and opens a session. When the account
// does not exist and auto-provisioning is on, an address the account policy
// classifies as admin gets a new admin account on the spot.
func (lm *LibraryManager) Login(ctx context.Context, email, password string) (*Session, *Member, error) {
	member, err := lm.db.MemberByEmail(ctx, email)
	if IsNotFound(err) {
		member, err = lm.provision(ctx, email, password)
	}
	if err != nil {
		return nil, nil, err
	}
	if !member.HasPassword() {
		return nil, nil, invalid("password", "no password has been set up for this account")
	}
	if err := CheckPassword(member.PasswordHash, password); err != nil {
		return nil, nil, err
	}
	s, err := lm.db.CreateSession(ctx, member.ID, lm.clock.Now(), lm.sessionTTL)
	if err != nil {
		return nil, nil, err
	}
	lm.log.Info().Int64("student_id", member.ID).Msg("login")
	return s, member, nil
}

// provision creates an admin account for an unknown address, or reports it
// as unknown.
func (lm *LibraryManager) provision(ctx context.Context, email, password string) (*Member, error) {
	if !lm.autoProvision || lm.policy.ClassifyAccount(email) != RoleAdmin {
		return nil, ErrUnauthenticated
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	local, _, _ := strings.Cut(email, "@")
	m, err := lm.db.CreateMember(ctx, MemberInput{
		Name:          local,
		StudentNumber: "ADMIN-" + strings.ToUpper(uuid.NewString()[:8]),
		Email:         email,
	}, hash, RoleAdmin)
	if err != nil {
		return nil, err
	}
	lm.log.Warn().Int64("student_id", m.ID).Str("email", m.Email).Msg("auto-provisioned admin account")
	return m, nil
}

// Authenticate resolves a session token to the member behind it.
func (lm *LibraryManager) Authenticate(ctx context.Context, token string) (*Member, error) {
	return lm.db.SessionMember(ctx, token, lm.clock.Now())
}

func (lm *LibraryManager) Logout(ctx context.Context, token string) error {
	return lm.db.DeleteSession(ctx, token)
}

// PurgeSessions removes expired sessions.
func (lm *LibraryManager) PurgeSessions(ctx context.Context, pr Principal) (int64, error) {
	if err := pr.requireAdmin("purge sessions"); err != nil {
		return 0, err
	}
	return lm.db.PurgeSessions(ctx, lm.clock.Now())
}

// Me returns the logged-in member.
func (lm *LibraryManager) Me(ctx context.Context, pr Principal) (*Member, error) {
	if err := pr.requireMember(); err != nil {
		return nil, err
	}
	return lm.db.GetMember(ctx, pr.MemberID)
}

func confirmPassword(password, confirmation string) error {
	if password != confirmation {
		return invalid("password_confirmation", "does not match")
	}
	return nil
}

// SetupPassword sets the first password of an account that has none.
func (lm *LibraryManager) SetupPassword(ctx context.Context, email, password, confirmation string) (*Member, error) {
	if err := confirmPassword(password, confirmation); err != nil {
		return nil, err
	}
	member, err := lm.db.MemberByEmail(ctx, email)
	if IsNotFound(err) && lm.autoProvision && lm.policy.ClassifyAccount(email) == RoleAdmin {
		return lm.provision(ctx, email, password)
	}
	if err != nil {
		return nil, err
	}
	if member.HasPassword() {
		return nil, &ConflictError{Message: "a password has already been set up for this account"}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := lm.db.SetPassword(ctx, member.ID, hash); err != nil {
		return nil, err
	}
	return lm.db.GetMember(ctx, member.ID)
}

// ChangePassword replaces the caller's password after checking the current
// one.
func (lm *LibraryManager) ChangePassword(ctx context.Context, pr Principal, current, password, confirmation string) error {
	if err := pr.requireMember(); err != nil {
		return err
	}
	if err := confirmPassword(password, confirmation); err != nil {
		return err
	}
	member, err := lm.db.GetMember(ctx, pr.MemberID)
	if err != nil {
		return err
	}
	if err := CheckPassword(member.PasswordHash, current); err != nil {
		return invalid("current_password", "is incorrect")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return lm.db.SetPassword(ctx, member.ID, hash)
}

// ------------------ Book requests ------------------

// CreateRequest files an acquisition request. Logged-in callers own it.
func (lm *LibraryManager) CreateRequest(ctx context.Context, pr Principal, in BookRequestInput) (*BookRequest, error) {
	if pr.MemberID != 0 {
		id := pr.MemberID
		in.MemberID = &id
	}
	return lm.db.CreateRequest(ctx, in)
}

// ListRequests shows admins every request and members their own.
func (lm *LibraryManager) ListRequests(ctx context.Context, pr Principal, f RequestFilter, p PageRequest) (Page[*BookRequest], error) {
	if !pr.IsAdmin {
		if err := pr.requireMember(); err != nil {
			return Page[*BookRequest]{}, err
		}
		f.MemberID = pr.MemberID
	}
	return lm.db.ListRequests(ctx, f, p)
}

func (lm *LibraryManager) UpdateRequestStatus(ctx context.Context, pr Principal, id int64, status, comment string) (*BookRequest, error) {
	if err := pr.requireAdmin("decide book requests"); err != nil {
		return nil, err
	}
	return lm.db.UpdateRequestStatus(ctx, id, status, comment)
}

func (lm *LibraryManager) DeleteRequest(ctx context.Context, pr Principal, id int64) error {
	req, err := lm.db.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if !pr.Owns(req.MemberID) {
		return &AuthorizationError{Action: "delete this book request"}
	}
	return lm.db.DeleteRequest(ctx, id)
}

// ------------------ Notifications ------------------

func (lm *LibraryManager) ListNotifications(ctx context.Context, pr Principal, f NotificationFilter, p PageRequest) (Page[*Notification], error) {
	if err := pr.requireMember(); err != nil {
		return Page[*Notification]{}, err
	}
	return lm.db.ListNotifications(ctx, pr.MemberID, f, p)
}

func (lm *LibraryManager) UnreadCount(ctx context.Context, pr Principal) (int, error) {
	if err := pr.requireMember(); err != nil {
		return 0, err
	}
	return lm.db.UnreadCount(ctx, pr.MemberID)
}

// MarkNotificationRead flags a notification the caller can see.
func (lm *LibraryManager) MarkNotificationRead(ctx context.Context, pr Principal, id int64) error {
	if err := pr.requireMember(); err != nil {
		return err
	}
	n, err := lm.db.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.MemberID != nil && !pr.Owns(n.MemberID) {
		return notFound("notification", id)
	}
	return lm.db.MarkNotificationRead(ctx, id)
}

func (lm *LibraryManager) MarkAllRead(ctx context.Context, pr Principal) (int64, error) {
	if err := pr.requireMember(); err != nil {
		return 0, err
	}
	return lm.db.MarkAllRead(ctx, pr.MemberID)
}

// DeleteNotification lets the owner or an admin remove a notification.
func (lm *LibraryManager) DeleteNotification(ctx context.Context, pr Principal, id int64) error {
	n, err := lm.db.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if !pr.Owns(n.MemberID) {
		return &AuthorizationError{Action: "delete this notification"}
	}
	return lm.db.DeleteNotification(ctx, id)
}

// ------------------ Library duty ------------------

// TodayDuty opens (or reopens) today's log for a shift.
func (lm *LibraryManager) TodayDuty(ctx context.Context, pr Principal, shift string) (*LibraryDuty, error) {
	if err := pr.requireMember(); err != nil {
		return nil, err
	}
	return lm.db.TodayDuty(ctx, lm.Today(), shift)
}

func (lm *LibraryManager) UpdateDuty(ctx context.Context, pr Principal, id int64, u DutyUpdate) (*LibraryDuty, error) {
	if err := pr.requireMember(); err != nil {
		return nil, err
	}
	return lm.db.UpdateDuty(ctx, id, u)
}

func (lm *LibraryManager) ListDuties(ctx context.Context, pr Principal, p PageRequest) (Page[*LibraryDuty], error) {
	if err := pr.requireMember(); err != nil {
		return Page[*LibraryDuty]{}, err
	}
	return lm.db.ListDuties(ctx, p)
}

func (lm *LibraryManager) DeleteDuty(ctx context.Context, pr Principal, id int64) error {
	if err := pr.requireAdmin("delete duty logs"); err != nil {
		return err
	}
	return lm.db.DeleteDuty(ctx, id)
}

// ------------------ Statistics ------------------

func (lm *LibraryManager) UsageStatistics(ctx context.Context, pr Principal) (*UsageStatistics, error) {
	if err := pr.requireAdmin("view usage statistics"); err != nil {
		return nil, err
	}
	return lm.db.UsageStatistics(ctx, lm.Today())
}

func (lm *LibraryManager) ChartData(ctx context.Context, pr Principal, period, dataType string) (*ChartData, error) {
	if err := pr.requireAdmin("view usage statistics"); err != nil {
		return nil, err
	}
	return lm.db.ChartData(ctx, period, dataType, lm.Today())
}
