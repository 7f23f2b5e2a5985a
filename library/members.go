package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const memberColumns = `m.id, m.name, m.student_number, COALESCE(m.email, '') AS email, m.grade, m.class,
	m.class_id, m.password_hash, m.role, m.created_at, m.updated_at`

func membersQuery() *goqu.SelectDataset {
	return from(goqu.T("members").As("m")).Select(goqu.L(memberColumns))
}

func getMemberWhere(ctx context.Context, q sqlx.QueryerContext, cond goqu.Expression, ref any) (*Member, error) {
	members, err := selectAll[*Member](ctx, q, membersQuery().Where(cond).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, notFound("student", ref)
	}
	return members[0], nil
}

func getMember(ctx context.Context, q sqlx.QueryerContext, id int64) (*Member, error) {
	return getMemberWhere(ctx, q, goqu.I("m.id").Eq(id), id)
}

// GetMember fetches a single member.
func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	return getMember(ctx, d.db, id)
}

// MemberByEmail finds a member by email, ignoring case.
func (d *Database) MemberByEmail(ctx context.Context, email string) (*Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return getMemberWhere(ctx, d.db, goqu.L("LOWER(m.email) = ?", email), email)
}

// MemberByStudentNumber finds a member by student number.
func (d *Database) MemberByStudentNumber(ctx context.Context, number string) (*Member, error) {
	return getMemberWhere(ctx, d.db, goqu.I("m.student_number").Eq(number), number)
}

// MemberInput carries the writable fields of a member.
type MemberInput struct {
	Name          string `db:"name"`
	StudentNumber string `db:"student_number"`
	Email         string `db:"email"`
	Grade         int    `db:"grade"`
	Class         string `db:"class"`
	ClassID       *int64 `db:"class_id"`
}

func (in *MemberInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.StudentNumber = strings.TrimSpace(in.StudentNumber)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Class = strings.TrimSpace(in.Class)
}

func (in *MemberInput) validate() error {
	switch {
	case in.Name == "":
		return invalid("name", "is required")
	case in.StudentNumber == "":
		return invalid("student_number", "is required")
	case in.Email != "" && !strings.Contains(in.Email, "@"):
		return invalid("email", "must be an email address")
	case in.Grade < 0:
		return invalid("grade", "must not be negative")
	}
	return nil
}

func memberConflict(err error, in MemberInput) error {
	if !isUniqueViolation(err) {
		return err
	}
	if strings.Contains(err.Error(), "email") {
		return &ConflictError{Message: fmt.Sprintf("email %s is already registered", in.Email)}
	}
	return &ConflictError{Message: fmt.Sprintf("student number %s is already registered", in.StudentNumber)}
}

// CreateMember inserts a member. passwordHash may be empty for accounts that
// set their password later.
func (d *Database) CreateMember(ctx context.Context, in MemberInput, passwordHash, role string) (*Member, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleMember
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO members(name, student_number, email, grade, class, class_id, password_hash, role)
		 VALUES(?,?,?,?,?,?,?,?)`,
		in.Name, in.StudentNumber, nullIfEmpty(in.Email), in.Grade, in.Class, in.ClassID, passwordHash, role)
	if err != nil {
		return nil, memberConflict(err, in)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetMember(ctx, id)
}

// UpdateMember replaces the profile fields of a member.
func (d *Database) UpdateMember(ctx context.Context, id int64, in MemberInput) (*Member, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE members SET name=?, student_number=?, email=?, grade=?, class=?, class_id=?,
		 updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		in.Name, in.StudentNumber, nullIfEmpty(in.Email), in.Grade, in.Class, in.ClassID, id)
	if err != nil {
		return nil, memberConflict(err, in)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("student", id)
	}
	return d.GetMember(ctx, id)
}

// SetPassword stores a new password hash.
func (d *Database) SetPassword(ctx context.Context, id int64, hash string) error {
	return d.updateMemberField(ctx, id, "password_hash", hash)
}

// SetRole changes a member's role.
func (d *Database) SetRole(ctx context.Context, id int64, role string) error {
	if role != RoleMember && role != RoleAdmin {
		return invalid("role", "must be %s or %s", RoleMember, RoleAdmin)
	}
	return d.updateMemberField(ctx, id, "role", role)
}

func (d *Database) updateMemberField(ctx context.Context, id int64, column string, value any) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE members SET `+column+`=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, value, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("student", id)
	}
	return nil
}

// DeleteMember removes a member without loan history.
func (d *Database) DeleteMember(ctx context.Context, id int64) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		m, err := getMember(ctx, tx, id)
		if err != nil {
			return err
		}
		var loans int
		if err := tx.GetContext(ctx, &loans, `SELECT COUNT(*) FROM loans WHERE member_id=?`, id); err != nil {
			return err
		}
		if loans > 0 {
			return &ConflictError{Message: fmt.Sprintf("student %s has %d loan records and cannot be deleted", m.Name, loans)}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
		return err
	})
}

// MemberFilter narrows member listings.
type MemberFilter struct {
	Search string
	Grade  int
	Class  string
	Role   string
}

// ListMembers returns one page of members with their loan counters.
func (d *Database) ListMembers(ctx context.Context, f MemberFilter, today Date, p PageRequest) (Page[*MemberSummary], error) {
	ds := from(goqu.T("members").As("m")).Select(
		goqu.L(memberColumns),
		goqu.L(`(SELECT COUNT(*) FROM loans x WHERE x.member_id = m.id AND x.returned_date IS NULL) AS active_borrows_count`),
		goqu.L(`(SELECT COUNT(*) FROM loans x WHERE x.member_id = m.id AND x.returned_date IS NULL AND x.due_date < ?) AS overdue_borrows_count`, today.String()),
		goqu.L(`(SELECT COUNT(*) FROM loans x WHERE x.member_id = m.id) AS total_borrows_count`),
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		ds = ds.Where(goqu.Or(contains("m.name", s), contains("m.student_number", s)))
	}
	if f.Grade != 0 {
		ds = ds.Where(goqu.I("m.grade").Eq(f.Grade))
	}
	if f.Class != "" {
		ds = ds.Where(goqu.I("m.class").Eq(f.Class))
	}
	if f.Role != "" {
		ds = ds.Where(goqu.I("m.role").Eq(f.Role))
	}
	ds = ds.Order(goqu.I("m.grade").Asc(), goqu.I("m.class").Asc(), goqu.I("m.student_number").Asc())

	members, meta, err := fetchPage[*MemberSummary](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*MemberSummary]{}, fmt.Errorf("list members: %w", err)
	}
	return Page[*MemberSummary]{Data: members, Meta: meta}, nil
}

// ------------------ Classes ------------------

// CreateClass registers a homeroom.
func (d *Database) CreateClass(ctx context.Context, c Class) (*Class, error) {
	if c.Grade <= 0 || c.Kumi <= 0 || c.Nendo <= 0 {
		return nil, invalid("class", "nendo, grade and kumi must be positive")
	}
	if c.Name == "" {
		c.Name = c.DisplayName()
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO classes(nendo, grade, kumi, name, class_number) VALUES(?,?,?,?,?)`,
		c.Nendo, c.Grade, c.Kumi, c.Name, c.ClassNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: fmt.Sprintf("class %d %s already exists", c.Nendo, c.DisplayName())}
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	var out Class
	err = d.db.GetContext(ctx, &out,
		`SELECT id, nendo, grade, kumi, name, class_number, created_at FROM classes WHERE id=?`, id)
	return &out, err
}

// ListClasses lists classes, optionally for one school year.
func (d *Database) ListClasses(ctx context.Context, nendo int) ([]*Class, error) {
	ds := from("classes").Select("id", "nendo", "grade", "kumi", "name", "class_number", "created_at").
		Order(goqu.C("nendo").Desc(), goqu.C("grade").Asc(), goqu.C("kumi").Asc())
	if nendo != 0 {
		ds = ds.Where(goqu.C("nendo").Eq(nendo))
	}
	return selectAll[*Class](ctx, d.db, ds)
}
