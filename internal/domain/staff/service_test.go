package staff

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/events"
)

func TestCreateUser(t *testing.T) {
	f := newFixture()
	u, err := f.svc.CreateUser(adminCtx(), CreateUserInput{
		Email:     "  Dr.House@Example.com ",
		Password:  "correct-horse",
		Role:      auth.RoleDoctor,
		FirstName: "Gregory",
		LastName:  "House",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "dr.house@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if !u.IsActive {
		t.Error("expected new user to be active")
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct-horse" {
		t.Error("expected password to be hashed")
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != events.StaffCreated {
		t.Errorf("expected staff.created event, got %v", got)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	f := newFixture()
	f.createUser(t, auth.RoleNurse, "nurse@example.com")

	_, err := f.svc.CreateUser(adminCtx(), CreateUserInput{
		Email: "NURSE@example.com", Password: "correct-horse", Role: auth.RoleNurse, FirstName: "A", LastName: "B",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateUser(adminCtx(), CreateUserInput{Email: "bad", Password: "short", Role: "janitor"})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range ae.FieldErrors {
		fields[fe.Field] = true
	}
	for _, name := range []string{"email", "password", "role", "firstName", "lastName"} {
		if !fields[name] {
			t.Errorf("expected field error for %s, got %+v", name, ae.FieldErrors)
		}
	}
}

func TestCreateUser_SuperAdminRequiresSuperAdmin(t *testing.T) {
	f := newFixture()
	in := CreateUserInput{Email: "root@example.com", Password: "correct-horse", Role: auth.RoleSuperAdmin, FirstName: "R", LastName: "Oot"}

	if _, err := f.svc.CreateUser(adminCtx(), in); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for admin caller, got %v", err)
	}

	ctx := auth.WithIdentity(context.Background(), uuid.NewString(), auth.RoleSuperAdmin)
	if _, err := f.svc.CreateUser(ctx, in); err != nil {
		t.Fatalf("expected super admin to succeed, got %v", err)
	}
}

func TestUpdateUser_ProfileOnly(t *testing.T) {
	f := newFixture()
	u := f.createUser(t, auth.RoleDoctor, "doc@example.com")

	updated, err := f.svc.UpdateUser(adminCtx(), u.ID, UpdateUserInput{
		Specialization:  ptr("Cardiology"),
		ConsultationFee: ptr(50.0),
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if *updated.Specialization != "Cardiology" || *updated.ConsultationFee != 50 {
		t.Errorf("unexpected profile %+v", updated)
	}
	if updated.Role != auth.RoleDoctor || updated.Email != "doc@example.com" {
		t.Error("role and email must not change")
	}
}

func TestDeactivateUser(t *testing.T) {
	f := newFixture()
	u := f.createUser(t, auth.RoleReceptionist, "front@example.com")

	got, err := f.svc.DeactivateUser(adminCtx(), u.ID)
	if err != nil || got.IsActive {
		t.Fatalf("expected inactive user, got %+v, %v", got, err)
	}

	self := auth.WithIdentity(context.Background(), u.ID.String(), auth.RoleAdmin)
	if _, err := f.svc.DeactivateUser(self, u.ID); !apperr.Is(err, apperr.KindInvalidRequest) {
		t.Errorf("expected self-deactivation to be rejected, got %v", err)
	}

	got, err = f.svc.ActivateUser(adminCtx(), u.ID)
	if err != nil || !got.IsActive {
		t.Fatalf("expected active user, got %+v, %v", got, err)
	}
}

func TestGetDoctor(t *testing.T) {
	f := newFixture()
	doc := f.createUser(t, auth.RoleDoctor, "doc@example.com")
	nurse := f.createUser(t, auth.RoleNurse, "nurse@example.com")

	if _, err := f.svc.GetDoctor(context.Background(), doc.ID); err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if _, err := f.svc.GetDoctor(context.Background(), nurse.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected nurse to be rejected as doctor, got %v", err)
	}
	if _, err := f.svc.GetDoctor(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	f.svc.DeactivateUser(adminCtx(), doc.ID)
	if _, err := f.svc.GetDoctor(context.Background(), doc.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected inactive doctor to be rejected, got %v", err)
	}
}

func TestListUsers_RoleFilter(t *testing.T) {
	f := newFixture()
	f.createUser(t, auth.RoleDoctor, "a@example.com")
	f.createUser(t, auth.RoleDoctor, "b@example.com")
	f.createUser(t, auth.RoleNurse, "c@example.com")

	users, total, err := f.svc.ListUsers(context.Background(), UserFilter{Role: auth.RoleDoctor, Limit: 10})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Errorf("expected 2 doctors, got %d/%d", len(users), total)
	}

	if _, _, err := f.svc.ListUsers(context.Background(), UserFilter{Role: "janitor"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown role, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	u := f.createUser(t, auth.RoleAccountant, "acct@example.com")

	res, err := f.svc.Login(context.Background(), LoginInput{Email: "ACCT@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := f.tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != u.ID.String() || claims.Role != auth.RoleAccountant {
		t.Errorf("unexpected claims %+v", claims)
	}
	if res.User.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}
}

func TestLogin_Rejects(t *testing.T) {
	f := newFixture()
	u := f.createUser(t, auth.RoleNurse, "nurse@example.com")

	cases := map[string]LoginInput{
		"wrong password": {Email: "nurse@example.com", Password: "wrong-horse"},
		"unknown email":  {Email: "ghost@example.com", Password: "correct-horse"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.svc.Login(context.Background(), in); !apperr.Is(err, apperr.KindUnauthorized) {
				t.Errorf("expected unauthorized, got %v", err)
			}
		})
	}

	f.svc.DeactivateUser(adminCtx(), u.ID)
	if _, err := f.svc.Login(context.Background(), LoginInput{Email: "nurse@example.com", Password: "correct-horse"}); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("expected inactive user to be rejected, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	u := f.createUser(t, auth.RolePharmacist, "rx@example.com")
	ctx := auth.WithIdentity(context.Background(), u.ID.String(), u.Role)

	err := f.svc.ChangePassword(ctx, ChangePasswordInput{CurrentPassword: "nope-nope", NewPassword: "battery-staple"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for wrong current password, got %v", err)
	}

	if err := f.svc.ChangePassword(ctx, ChangePasswordInput{CurrentPassword: "correct-horse", NewPassword: "battery-staple"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Login(context.Background(), LoginInput{Email: "rx@example.com", Password: "battery-staple"}); err != nil {
		t.Errorf("expected login with new password, got %v", err)
	}
}

func TestSetWorkingHours(t *testing.T) {
	f := newFixture()
	doc := f.createUser(t, auth.RoleDoctor, "doc@example.com")

	hours, err := f.svc.SetWorkingHours(adminCtx(), doc.ID, WorkingHoursInput{Shifts: []ShiftInput{
		{DayOfWeek: ptr(1), StartTime: "09:00", EndTime: "12:00"},
		{DayOfWeek: ptr(1), StartTime: "13:00", EndTime: "17:00", SlotMinutes: 30},
	}})
	if err != nil {
		t.Fatalf("SetWorkingHours: %v", err)
	}
	if len(hours) != 2 || hours[0].SlotMinutes != DefaultSlotMinutes || hours[1].SlotMinutes != 30 {
		t.Errorf("unexpected hours %+v", hours)
	}
	if got := f.events.Types(); got[len(got)-1] != events.DoctorAvailabilityChanged {
		t.Errorf("expected availability event, got %v", got)
	}
}

func TestSetWorkingHours_Rejects(t *testing.T) {
	f := newFixture()
	doc := f.createUser(t, auth.RoleDoctor, "doc@example.com")
	nurse := f.createUser(t, auth.RoleNurse, "nurse@example.com")

	overlap := WorkingHoursInput{Shifts: []ShiftInput{
		{DayOfWeek: ptr(2), StartTime: "09:00", EndTime: "12:00"},
		{DayOfWeek: ptr(2), StartTime: "11:00", EndTime: "14:00"},
	}}
	if _, err := f.svc.SetWorkingHours(adminCtx(), doc.ID, overlap); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected overlap to be rejected, got %v", err)
	}

	backwards := WorkingHoursInput{Shifts: []ShiftInput{{DayOfWeek: ptr(2), StartTime: "12:00", EndTime: "09:00"}}}
	if _, err := f.svc.SetWorkingHours(adminCtx(), doc.ID, backwards); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected end before start to be rejected, got %v", err)
	}

	missingDay := WorkingHoursInput{Shifts: []ShiftInput{{StartTime: "09:00", EndTime: "12:00"}}}
	if _, err := f.svc.SetWorkingHours(adminCtx(), doc.ID, missingDay); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected missing day to be rejected, got %v", err)
	}

	ok := WorkingHoursInput{Shifts: []ShiftInput{{DayOfWeek: ptr(2), StartTime: "09:00", EndTime: "12:00"}}}
	if _, err := f.svc.SetWorkingHours(adminCtx(), nurse.ID, ok); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected non-doctor to be rejected, got %v", err)
	}
}

func TestLeaves(t *testing.T) {
	f := newFixture()
	doc := f.createUser(t, auth.RoleDoctor, "doc@example.com")

	if _, err := f.svc.AddLeave(adminCtx(), doc.ID, LeaveInput{StartDate: "2025-03-10", EndDate: "2025-03-09"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected end-before-start to be rejected, got %v", err)
	}

	l, err := f.svc.AddLeave(adminCtx(), doc.ID, LeaveInput{StartDate: "2025-03-10", EndDate: "2025-03-12", Reason: ptr("conference")})
	if err != nil {
		t.Fatalf("AddLeave: %v", err)
	}
	if l.CreatedBy == nil {
		t.Error("expected created by to be recorded")
	}

	leaves, err := f.svc.ListLeaves(context.Background(), doc.ID, "2025-03-11")
	if err != nil || len(leaves) != 1 {
		t.Fatalf("expected 1 leave, got %d, %v", len(leaves), err)
	}
	leaves, _ = f.svc.ListLeaves(context.Background(), doc.ID, "2025-03-13")
	if len(leaves) != 0 {
		t.Errorf("expected past leave to be filtered, got %d", len(leaves))
	}

	if err := f.svc.DeleteLeave(adminCtx(), doc.ID, l.ID); err != nil {
		t.Fatalf("DeleteLeave: %v", err)
	}
	if err := f.svc.DeleteLeave(adminCtx(), doc.ID, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
