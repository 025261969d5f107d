package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

const userColumns = `id, config_id, object_id, user_principal_name, display_name, given_name, surname, mail,
	mobile_phone, office_location, preferred_language, job_title, access_token, refresh_token, id_token,
	expires_in, token_expires_time, scope, raw_data, create_time, update_time`

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	store *Store
}

func (r *UserRepo) FindByObjectID(ctx context.Context, objectID string) (*users.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM azure_oauth2_users WHERE object_id = $1`, "user "+objectID, objectID)
}

func (r *UserRepo) FindByUserPrincipalName(ctx context.Context, upn string) (*users.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM azure_oauth2_users WHERE user_principal_name = $1 ORDER BY id LIMIT 1`, "user "+upn, upn)
}

func (r *UserRepo) FindByMail(ctx context.Context, mail string) (*users.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM azure_oauth2_users WHERE mail = $1 ORDER BY id LIMIT 1`, "user "+mail, mail)
}

func (r *UserRepo) FindExpiredTokenUsers(ctx context.Context, now time.Time) ([]*users.User, error) {
	rows, err := r.store.query(ctx, `SELECT `+userColumns+` FROM azure_oauth2_users
		WHERE token_expires_time < $1 AND refresh_token IS NOT NULL AND refresh_token <> ''
		ORDER BY id`, toMillis(now))
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.FindExpiredTokenUsers] query")
	}
	defer rows.Close()

	result := make([]*users.User, 0)
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[UserRepo.FindExpiredTokenUsers] scan")
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *UserRepo) Save(ctx context.Context, u *users.User) error {
	sealer := r.store.sealer
	access, err := sealer.Seal(u.AccessToken)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Save] seal access token")
	}
	refresh, err := sealer.SealPtr(u.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Save] seal refresh token")
	}
	idToken, err := sealer.SealPtr(u.IDToken)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Save] seal id token")
	}
	var raw *string
	if u.RawData != nil {
		b, err := json.Marshal(u.RawData)
		if err != nil {
			return errors.Wrap(err, "[UserRepo.Save] marshal raw data")
		}
		s := string(b)
		if raw, err = sealer.SealPtr(&s); err != nil {
			return errors.Wrap(err, "[UserRepo.Save] seal raw data")
		}
	}

	if u.ID == 0 {
		err = r.store.queryRow(ctx, `INSERT INTO azure_oauth2_users
			(config_id, object_id, user_principal_name, display_name, given_name, surname, mail, mobile_phone,
			 office_location, preferred_language, job_title, access_token, refresh_token, id_token, expires_in,
			 token_expires_time, scope, raw_data, create_time, update_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING id`,
			u.ClientID, u.ObjectID, u.UserPrincipalName, u.DisplayName, u.GivenName, u.Surname, u.Mail,
			u.MobilePhone, u.OfficeLocation, u.PreferredLanguage, u.JobTitle, access, refresh, idToken,
			u.ExpiresIn, toMillis(u.TokenExpiresTime), u.Scope, raw, toMillis(u.CreateTime), toMillis(u.UpdateTime),
		).Scan(&u.ID)
		return classify(err, "user "+u.ObjectID)
	}

	res, err := r.store.exec(ctx, `UPDATE azure_oauth2_users SET
		user_principal_name = $2, display_name = $3, given_name = $4, surname = $5, mail = $6, mobile_phone = $7,
		office_location = $8, preferred_language = $9, job_title = $10, access_token = $11, refresh_token = $12,
		id_token = $13, expires_in = $14, token_expires_time = $15, scope = $16, raw_data = $17, update_time = $18
		WHERE id = $1`,
		u.ID, u.UserPrincipalName, u.DisplayName, u.GivenName, u.Surname, u.Mail, u.MobilePhone,
		u.OfficeLocation, u.PreferredLanguage, u.JobTitle, access, refresh, idToken, u.ExpiresIn,
		toMillis(u.TokenExpiresTime), u.Scope, raw, toMillis(u.UpdateTime),
	)
	if err != nil {
		return classify(err, "user "+u.ObjectID)
	}
	return notFoundIfNone(res, "user "+u.ObjectID)
}

func (r *UserRepo) one(ctx context.Context, query, what string, args ...any) (*users.User, error) {
	u, err := r.scan(r.store.queryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, what)
	}
	return u, nil
}

func (r *UserRepo) scan(row scanner) (*users.User, error) {
	var (
		u                              users.User
		raw                            sql.NullString
		tokenExpires, created, updated int64
	)
	if err := row.Scan(&u.ID, &u.ClientID, &u.ObjectID, &u.UserPrincipalName, &u.DisplayName, &u.GivenName,
		&u.Surname, &u.Mail, &u.MobilePhone, &u.OfficeLocation, &u.PreferredLanguage, &u.JobTitle,
		&u.AccessToken, &u.RefreshToken, &u.IDToken, &u.ExpiresIn, &tokenExpires, &u.Scope, &raw,
		&created, &updated); err != nil {
		return nil, err
	}

	sealer := r.store.sealer
	var err error
	if u.AccessToken, err = sealer.Open(u.AccessToken); err != nil {
		return nil, err
	}
	if u.RefreshToken, err = sealer.OpenPtr(u.RefreshToken); err != nil {
		return nil, err
	}
	if u.IDToken, err = sealer.OpenPtr(u.IDToken); err != nil {
		return nil, err
	}
	if raw.Valid && raw.String != "" {
		data, err := sealer.Open(raw.String)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(strings.NewReader(data))
		dec.UseNumber()
		var payload oauth2.Payload
		if err := dec.Decode(&payload); err != nil {
			return nil, errors.Wrap(err, "decode raw data")
		}
		u.RawData = payload
	}
	u.TokenExpiresTime = fromMillis(tokenExpires)
	u.CreateTime = fromMillis(created)
	u.UpdateTime = fromMillis(updated)
	return &u, nil
}
