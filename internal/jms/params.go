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

import "github.com/wso2/api-platform/gateway/jms-bridge/internal/naming"

// Factory and service parameters as they appear in the transport descriptor.
const (
	ParamConnectionFactory     = "transport.jms.ConnectionFactory"
	ParamConnectionFactoryJNDI = "transport.jms.ConnectionFactoryJNDIName"
	ParamConnectionFactoryType = "transport.jms.ConnectionFactoryType"
	ParamDestination           = "transport.jms.Destination"
	ParamDestinationType       = "transport.jms.DestinationType"
	ParamReplyDestination      = "transport.jms.ReplyDestination"
	ParamReplyDestinationType  = "transport.jms.ReplyDestinationType"
	ParamContentTypeProperty   = "transport.jms.ContentTypeProperty"
	ParamCacheLevel            = "transport.jms.CacheLevel"
	ParamSpecVersion           = "transport.jms.JMSSpecVersion"
	ParamSessionTransacted     = "transport.jms.SessionTransacted"
	ParamSessionAck            = "transport.jms.SessionAcknowledgement"
	ParamUsername              = "transport.jms.UserName"
	ParamPassword              = "transport.jms.Password"
	ParamClientID              = "transport.jms.ClientID"
	ParamConcurrentConsumers   = "transport.jms.ConcurrentConsumers"
	ParamReceiveTimeout        = "transport.jms.ReceiveTimeout"
	ParamMessageSelector       = "transport.jms.MessageSelector"
	ParamSubscriptionDurable   = "transport.jms.SubscriptionDurable"
	ParamDurableSubscriberName = "transport.jms.DurableSubscriberName"
	ParamDurableClientID       = "transport.jms.DurableSubscriberClientID"
	ParamPubSubNoLocal         = "transport.jms.PubSubNoLocal"
	ParamMaxMessageSize        = "transport.jms.MaxMessageSize"
	ParamBindingRepair         = "transport.jms.BindingRepair"
	ParamWaitReply             = "transport.jms.WaitReply"
	ParamTransactionality      = "transport.Transactionality"

	ParamInitialContextFactory = naming.InitialContextFactory
	ParamProviderURL           = naming.ProviderURL
	ParamSecurityPrincipal     = naming.SecurityPrincipal
	ParamSecurityCredentials   = naming.SecurityCredentials
)

// Query parameters of jms:/ URLs.
const (
	URLDestType            = "destType"
	URLReplyDestination    = "replyDestination"
	URLReplyDestType       = "replyDestType"
	URLContentTypeProperty = "contentTypeProperty"
)

// Transport header names exchanged with the engine.
const (
	HeaderCorrelationID = "JMS_CORRELATION_ID"
	HeaderDeliveryMode  = "JMS_DELIVERY_MODE"
	HeaderDestination   = "JMS_DESTINATION"
	HeaderExpiration    = "JMS_EXPIRATION"
	HeaderMessageID     = "JMS_MESSAGE_ID"
	HeaderPriority      = "JMS_PRIORITY"
	HeaderRedelivered   = "JMS_REDELIVERED"
	HeaderReplyTo       = "JMS_REPLY_TO"
	HeaderTimestamp     = "JMS_TIMESTAMP"
	HeaderType          = "JMS_TYPE"
	HeaderMessageType   = "JMS_MESSAGE_TYPE"

	JMSXPrefix   = "JMSX"
	JMSXGroupID  = "JMSXGroupID"
	JMSXGroupSeq = "JMSXGroupSeq"

	// SOAPAction carries the engine action hint.
	SOAPAction = "SOAPAction"

	DefaultFactoryName         = "default"
	DefaultContentTypeProperty = "Content-Type"
)

// secretParams are never rendered into advertised URLs.
var secretParams = map[string]bool{
	ParamSecurityPrincipal:   true,
	ParamSecurityCredentials: true,
	ParamUsername:            true,
	ParamPassword:            true,
}

// matchParams identify the physical broker a factory talks to.
var matchParams = []string{
	ParamConnectionFactoryJNDI,
	ParamInitialContextFactory,
	ParamProviderURL,
	ParamSecurityPrincipal,
	ParamSecurityCredentials,
}
