// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package jms

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const URLPrefix = "jms:/"

// OutTransportInfo is the parsed form of a jms:/ target address.
type OutTransportInfo struct {
	URL                 string
	Destination         core.Destination
	ReplyDestination    *core.Destination
	ContentTypeProperty string
	Properties          map[string]string
}

var (
	urlValueEscaper = strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D")
	urlNameEscaper  = strings.NewReplacer("%", "%25", "?", "%3F", "&", "%26", "#", "%23")
)

// ParseURL parses jms:/<destination>?destType=..&<property>=... Values may
// carry unescaped '/' and ':' so provider URLs can be embedded as they are.
func ParseURL(raw string) (*OutTransportInfo, error) {
	if !strings.HasPrefix(raw, URLPrefix) {
		return nil, fmt.Errorf("parse %q: missing %s prefix", raw, URLPrefix)
	}
	rest := strings.TrimPrefix(raw, URLPrefix)
	name, query, _ := strings.Cut(rest, "?")
	if name == "" {
		return nil, fmt.Errorf("parse %q: empty destination", raw)
	}
	if un, err := url.PathUnescape(name); err == nil {
		name = un
	}
	info := &OutTransportInfo{URL: raw, Properties: map[string]string{}}
	if query != "" {
		for _, pair := range strings.Split(query, "&") {
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			if uv, err := url.PathUnescape(v); err == nil {
				v = uv
			}
			info.Properties[k] = v
		}
	}

	dt := info.Properties[URLDestType]
	if dt == "" {
		dt = info.Properties[ParamDestinationType]
	}
	t, err := core.ParseDestinationType(dt, core.DestinationQueue)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	info.Destination = core.Destination{Name: name, Type: t}

	if rn := info.Properties[URLReplyDestination]; rn != "" {
		rt, err := core.ParseDestinationType(info.Properties[URLReplyDestType], core.DestinationQueue)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		info.ReplyDestination = &core.Destination{Name: rn, Type: rt}
	}
	info.ContentTypeProperty = info.Properties[URLContentTypeProperty]
	return info, nil
}

// BuildEndpointURL renders a jms:/ address for dest. Security principals,
// credentials and JMS user names and passwords are left out, as is any other
// property whose value embeds one of them.
func BuildEndpointURL(dest core.Destination, reply *core.Destination, contentTypeProperty string, props map[string]string) string {
	var secrets []string
	for k := range secretParams {
		if v := props[k]; v != "" {
			secrets = append(secrets, v)
		}
	}
	leaks := func(v string) bool {
		for _, s := range secrets {
			if strings.Contains(v, s) {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	b.WriteString(URLPrefix)
	b.WriteString(urlNameEscaper.Replace(dest.Name))
	b.WriteString("?")
	b.WriteString(URLDestType + "=" + dest.Type.String())
	if reply != nil && reply.Name != "" {
		b.WriteString("&" + URLReplyDestination + "=" + urlValueEscaper.Replace(reply.Name))
		b.WriteString("&" + URLReplyDestType + "=" + reply.Type.String())
	}
	if contentTypeProperty != "" {
		b.WriteString("&" + URLContentTypeProperty + "=" + urlValueEscaper.Replace(contentTypeProperty))
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		switch {
		case secretParams[k], leaks(props[k]):
		case k == URLDestType, k == URLReplyDestination, k == URLReplyDestType, k == URLContentTypeProperty:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + urlValueEscaper.Replace(props[k]))
	}
	return b.String()
}
