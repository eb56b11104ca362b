package cloudfiles

import (
	"github.com/valyala/fasthttp"
)

var jsonFormat = map[string]string{"format": "json"}

var (
	opAuthenticate = &Operation{
		Name:            "authenticate",
		Method:          fasthttp.MethodGet,
		Category:        CategoryAuth,
		RequiredHeaders: []string{HeaderAuthUser, HeaderAuthKey},
		ExpectedHeaders: []string{HeaderAuthToken, HeaderStorageURL, HeaderCDNManagementURL},
		ExpectedStatus:  StatusSuccessful,
	}

	// account
	opAccountMetadata = &Operation{
		Name:            "account_metadata",
		Method:          fasthttp.MethodHead,
		Category:        CategoryStorage,
		ExpectedHeaders: []string{HeaderAccountContainerCount, HeaderAccountBytesUsed},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetAccountMetadata = &Operation{
		Name:           "set_account_metadata",
		Method:         fasthttp.MethodPost,
		Category:       CategoryStorage,
		ExpectedStatus: StatusSuccessful,
	}
	opSetTempURLKey = &Operation{
		Name:            "set_temp_url_key",
		Method:          fasthttp.MethodPost,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderTempURLKey},
		ExpectedStatus:  StatusSuccessful,
	}

	// containers
	opListContainers = &Operation{
		Name:           "list_containers",
		Method:         fasthttp.MethodGet,
		Category:       CategoryStorage,
		Query:          jsonFormat,
		ExpectedBody:   BodyJSON,
		ExpectedStatus: StatusSuccessful,
	}
	opCreateContainer = &Operation{
		Name:           "create_container",
		Method:         fasthttp.MethodPut,
		Category:       CategoryStorage,
		ExpectedStatus: StatusSuccessful,
	}
	opDeleteContainer = &Operation{
		Name:           "delete_container",
		Method:         fasthttp.MethodDelete,
		Category:       CategoryStorage,
		ExpectedStatus: Status(fasthttp.StatusNoContent),
	}
	opContainerMetadata = &Operation{
		Name:            "container_metadata",
		Method:          fasthttp.MethodHead,
		Category:        CategoryStorage,
		ExpectedHeaders: []string{HeaderContainerObjectCount, HeaderContainerBytesUsed},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetContainerMetadata = &Operation{
		Name:           "set_container_metadata",
		Method:         fasthttp.MethodPost,
		Category:       CategoryStorage,
		ExpectedStatus: StatusSuccessful,
	}
	opSetContainerLogging = &Operation{
		Name:            "set_container_logging",
		Method:          fasthttp.MethodPost,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderAccessLog},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetWebIndex = &Operation{
		Name:            "set_web_index",
		Method:          fasthttp.MethodPost,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderWebIndex},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetWebError = &Operation{
		Name:            "set_web_error",
		Method:          fasthttp.MethodPost,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderWebError},
		ExpectedStatus:  StatusSuccessful,
	}

	// objects
	opListObjects = &Operation{
		Name:           "list_objects",
		Method:         fasthttp.MethodGet,
		Category:       CategoryStorage,
		Query:          jsonFormat,
		ExpectedBody:   BodyJSON,
		ExpectedStatus: StatusSuccessful,
	}
	opRetrieveObject = &Operation{
		Name:            "retrieve_object",
		Method:          fasthttp.MethodGet,
		Category:        CategoryStorage,
		ExpectedHeaders: []string{HeaderETag},
		ExpectedStatus:  StatusSuccessful,
	}
	opCreateObject = &Operation{
		Name:            "create_object",
		Method:          fasthttp.MethodPut,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderContentLength, HeaderETag},
		RequiredBody:    true,
		ExpectedHeaders: []string{HeaderETag},
		ExpectedStatus:  Status(fasthttp.StatusCreated),
	}
	opDeleteObject = &Operation{
		Name:           "delete_object",
		Method:         fasthttp.MethodDelete,
		Category:       CategoryStorage,
		ExpectedStatus: Status(fasthttp.StatusNoContent),
	}
	opObjectMetadata = &Operation{
		Name:            "object_metadata",
		Method:          fasthttp.MethodHead,
		Category:        CategoryStorage,
		ExpectedHeaders: []string{HeaderETag},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetObjectMetadata = &Operation{
		Name:           "set_object_metadata",
		Method:         fasthttp.MethodPost,
		Category:       CategoryStorage,
		ExpectedStatus: StatusSuccessful,
	}
	opSetObjectContentType = &Operation{
		Name:            "set_object_content_type",
		Method:          fasthttp.MethodPost,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderContentType},
		ExpectedStatus:  StatusSuccessful,
	}
	opCopyObject = &Operation{
		Name:            "copy_object",
		Method:          MethodCopy,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderDestination},
		ExpectedStatus:  Status(fasthttp.StatusCreated),
	}

	// cdn
	opListCDNContainers = &Operation{
		Name:           "list_cdn_containers",
		Method:         fasthttp.MethodGet,
		Category:       CategoryCDN,
		Query:          jsonFormat,
		ExpectedBody:   BodyJSON,
		ExpectedStatus: StatusSuccessful,
	}
	opEnableCDN = &Operation{
		Name:            "enable_cdn",
		Method:          fasthttp.MethodPut,
		Category:        CategoryCDN,
		RequiredHeaders: []string{HeaderCDNEnabled, HeaderTTL},
		ExpectedHeaders: []string{HeaderCDNURI},
		ExpectedStatus:  StatusSuccessful,
	}
	opDisableCDN = &Operation{
		Name:            "disable_cdn",
		Method:          fasthttp.MethodPost,
		Category:        CategoryCDN,
		RequiredHeaders: []string{HeaderCDNEnabled},
		ExpectedStatus:  StatusSuccessful,
	}
	opCDNMetadata = &Operation{
		Name:            "cdn_metadata",
		Method:          fasthttp.MethodHead,
		Category:        CategoryCDN,
		ExpectedHeaders: []string{HeaderCDNEnabled},
		ExpectedStatus:  StatusSuccessful,
	}
	opSetCDNMetadata = &Operation{
		Name:           "set_cdn_metadata",
		Method:         fasthttp.MethodPost,
		Category:       CategoryCDN,
		ExpectedStatus: StatusSuccessful,
	}
	opSetCDNLogging = &Operation{
		Name:            "set_cdn_logging",
		Method:          fasthttp.MethodPost,
		Category:        CategoryCDN,
		RequiredHeaders: []string{HeaderLogRetention},
		ExpectedStatus:  StatusSuccessful,
	}
	opPurgeCDNObject = &Operation{
		Name:           "purge_cdn_object",
		Method:         fasthttp.MethodDelete,
		Category:       CategoryCDN,
		ExpectedStatus: Status(fasthttp.StatusNoContent),
	}

	// streaming
	opStreamUpload = &Operation{
		Name:            "stream_upload",
		Method:          fasthttp.MethodPut,
		Category:        CategoryStorage,
		RequiredHeaders: []string{HeaderContentLength},
		RequiredBody:    true,
		ExpectedHeaders: []string{HeaderETag},
		ExpectedStatus:  Status(fasthttp.StatusCreated),
	}
	opStreamDownload = &Operation{
		Name:            "stream_download",
		Method:          fasthttp.MethodGet,
		Category:        CategoryStorage,
		ExpectedHeaders: []string{HeaderETag},
		ExpectedStatus:  StatusSuccessful,
	}
)

// Operations returns the static operation table.
func Operations() []*Operation {
	return []*Operation{
		opAuthenticate,
		opAccountMetadata, opSetAccountMetadata, opSetTempURLKey,
		opListContainers, opCreateContainer, opDeleteContainer, opContainerMetadata,
		opSetContainerMetadata, opSetContainerLogging, opSetWebIndex, opSetWebError,
		opListObjects, opRetrieveObject, opCreateObject, opDeleteObject, opObjectMetadata,
		opSetObjectMetadata, opSetObjectContentType, opCopyObject,
		opListCDNContainers, opEnableCDN, opDisableCDN, opCDNMetadata, opSetCDNMetadata,
		opSetCDNLogging, opPurgeCDNObject,
		opStreamUpload, opStreamDownload,
	}
}
