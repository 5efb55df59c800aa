/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"context"
)

type userIdentityKey struct{}

// WithUserIdentity attaches the authenticated user id resolved upstream
func WithUserIdentity(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdentityKey{}, userId)
}

// UserIdentity returns the authenticated user id, or "" if none was attached.
func UserIdentity(ctx context.Context) string {
	userId, _ := ctx.Value(userIdentityKey{}).(string)
	return userId
}
